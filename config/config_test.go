package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LIVEPEER_API_KEY", "")
	t.Setenv("ENV", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("SyncInterval = %v, want 1m", cfg.SyncInterval)
	}
	if cfg.LivepeerEnabled() {
		t.Errorf("livepeer should be disabled without an api key")
	}
	if !cfg.IsDev() {
		t.Errorf("default env should be development")
	}
}

func TestLoadTrimsTrailingSlash(t *testing.T) {
	t.Setenv("LIVEPEER_API_URL", "https://example.test/api/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LivepeerAPIURL != "https://example.test/api" {
		t.Errorf("LivepeerAPIURL = %q", cfg.LivepeerAPIURL)
	}
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v, want 2 entries", cfg.CORSAllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			LivepeerAPIURL:       "https://livepeer.studio/api",
			VendorMaxConcurrency: 4,
			UploadMaxBytes:       1024,
			SyncInterval:         time.Minute,
			ChatRatePerSec:       1,
			ChatBurst:            5,
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad url", mutate: func(c *Config) { c.LivepeerAPIURL = "not a url" }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.VendorMaxConcurrency = 0 }, wantErr: true},
		{name: "zero upload limit", mutate: func(c *Config) { c.UploadMaxBytes = 0 }, wantErr: true},
		{name: "short jwt secret", mutate: func(c *Config) { c.AuthJWTSecret = "short" }, wantErr: true},
		{name: "zero chat burst", mutate: func(c *Config) { c.ChatBurst = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFeatureFlags(t *testing.T) {
	c := &Config{LivepeerAPIKey: "k", PinataJWT: "j", GCSBucket: "b", AuthJWTSecret: "0123456789abcdef"}
	if !c.LivepeerEnabled() || !c.PinningEnabled() || !c.UploadsEnabled() || !c.AuthEnabled() {
		t.Errorf("expected all features enabled: %+v", c)
	}
}
