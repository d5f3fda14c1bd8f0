package livepeer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyWebhook(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	body := []byte(`{"event":"stream.started","stream":{"id":"st1"}}`)
	good := SignatureFor("whsec", now, body)

	tests := []struct {
		name   string
		secret string
		header string
		body   []byte
		at     time.Time
		want   error
	}{
		{"valid", "whsec", good, body, now, nil},
		{"wrong secret", "other", good, body, now, ErrBadSignature},
		{"tampered body", "whsec", good, []byte(`{"event":"stream.idle"}`), now, ErrBadSignature},
		{"stale", "whsec", good, body, now.Add(6 * time.Minute), ErrStaleSignature},
		{"future", "whsec", good, body, now.Add(-6 * time.Minute), ErrStaleSignature},
		{"garbage header", "whsec", "nonsense", body, now, ErrBadSignature},
		{"bad timestamp", "whsec", "t=abc,v1=00", body, now, ErrBadSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyWebhook(tt.secret, tt.header, tt.body, tt.at)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestVerifyWebhookRotatedSecrets(t *testing.T) {
	now := time.Now()
	body := []byte(`{}`)
	header := SignatureFor("whsec", now, body) + ",v1=deadbeef"
	assert.NoError(t, VerifyWebhook("whsec", header, body, now))
}

func TestVerifyWebhookRequiresSecret(t *testing.T) {
	assert.Error(t, VerifyWebhook("", "t=1,v1=00", nil, time.Now()))
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"id":"e1","event":"recording.ready","payload":{"session":{"id":"sess1","parentId":"st9","assetId":"a1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, EventRecordingReady, ev.Event)
	assert.Equal(t, "st9", ev.StreamID())

	ev, err = ParseWebhook([]byte(`{"event":"asset.ready","payload":{"asset":{"id":"a1","sourceStreamId":"st3"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "st3", ev.StreamID())

	ev, err = ParseWebhook([]byte(`{"event":"stream.idle","stream":{"id":"st1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "st1", ev.StreamID())

	_, err = ParseWebhook([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	_, err = ParseWebhook([]byte(`nope`))
	assert.Error(t, err)
}
