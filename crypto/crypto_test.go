package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	k := make([]byte, 32)
	if _, err := rand.Read(k); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(k)
}

func TestNewSealer(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{name: "empty", key: "", wantErr: "empty"},
		{name: "not base64", key: "!!!not-base64!!!", wantErr: "base64"},
		{name: "short", key: base64.StdEncoding.EncodeToString([]byte("short")), wantErr: "32 bytes"},
		{name: "valid", key: testKey(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSealer(tt.key)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("NewSealer() err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil || !s.Enabled() {
				t.Fatalf("NewSealer() = %v, %v", s, err)
			}
		})
	}
}

func TestSealOpen(t *testing.T) {
	s, err := NewSealer(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	stored, ver, err := s.Seal("abcd-efgh-ijkl-mnop", "stream-1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if ver != VersionAESGCM {
		t.Errorf("version = %d, want %d", ver, VersionAESGCM)
	}
	if strings.Contains(stored, "abcd") {
		t.Errorf("sealed value leaks plaintext: %q", stored)
	}
	got, err := s.Open(stored, ver, "stream-1")
	if err != nil || got != "abcd-efgh-ijkl-mnop" {
		t.Fatalf("Open = %q, %v", got, err)
	}

	again, _, _ := s.Seal("abcd-efgh-ijkl-mnop", "stream-1")
	if again == stored {
		t.Errorf("two seals of the same value should differ by nonce")
	}
}

func TestOpenRejectsWrongBinding(t *testing.T) {
	s, _ := NewSealer(testKey(t))
	stored, ver, _ := s.Seal("secret", "stream-1")
	if _, err := s.Open(stored, ver, "stream-2"); err == nil {
		t.Fatal("expected failure when aad differs")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	a, _ := NewSealer(testKey(t))
	b, _ := NewSealer(testKey(t))
	stored, ver, _ := a.Seal("secret", "")
	if _, err := b.Open(stored, ver, ""); err == nil {
		t.Fatal("expected failure with a different key")
	}
}

func TestOpenTampered(t *testing.T) {
	s, _ := NewSealer(testKey(t))
	stored, ver, _ := s.Seal("secret", "")
	raw, _ := base64.StdEncoding.DecodeString(stored)
	raw[len(raw)-1] ^= 0xff
	if _, err := s.Open(base64.StdEncoding.EncodeToString(raw), ver, ""); err == nil {
		t.Fatal("expected tamper detection")
	}
	if _, err := s.Open("AAAA", ver, ""); err == nil {
		t.Fatal("expected short ciphertext error")
	}
}

func TestNilSealerStoresPlaintext(t *testing.T) {
	var s *Sealer
	stored, ver, err := s.Seal("plain-key", "x")
	if err != nil || stored != "plain-key" || ver != VersionPlain {
		t.Fatalf("Seal = %q, %d, %v", stored, ver, err)
	}
	got, err := s.Open(stored, ver, "x")
	if err != nil || got != "plain-key" {
		t.Fatalf("Open = %q, %v", got, err)
	}
	if _, err := s.Open("c2VhbGVk", VersionAESGCM, "x"); !errors.Is(err, ErrKeyRequired) {
		t.Fatalf("Open sealed without key err = %v, want ErrKeyRequired", err)
	}
}

func TestOpenUnknownVersion(t *testing.T) {
	s, _ := NewSealer(testKey(t))
	if _, err := s.Open("x", 7, ""); err == nil {
		t.Fatal("expected unknown version error")
	}
}
