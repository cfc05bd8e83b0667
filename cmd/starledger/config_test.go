package main

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Store != StoreMemory {
		t.Errorf("store: got %s, want memory", cfg.Store)
	}
	if cfg.ChallengeWindow != 5*time.Minute {
		t.Errorf("challenge window: got %s, want 5m", cfg.ChallengeWindow)
	}
	if cfg.NATSURL != "" {
		t.Errorf("NATS should be off by default, got %q", cfg.NATSURL)
	}
	if cfg.RejectReplays {
		t.Error("replay rejection should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	t.Setenv("STAR_STORE", "leveldb")
	t.Setenv("STAR_CHALLENGE_WINDOW", "90s")
	t.Setenv("STAR_REPLAY_CACHE_SIZE", "42")
	t.Setenv("STAR_REJECT_REPLAYS", "true")
	t.Setenv("STAR_MIRROR_POSTGRES", "1")
	t.Setenv("STAR_PUBLISH_CHAN_SIZE", "not-a-number")

	cfg := DefaultConfig()

	if cfg.Store != StoreLevelDB {
		t.Errorf("store: got %s", cfg.Store)
	}
	if cfg.ChallengeWindow != 90*time.Second {
		t.Errorf("challenge window: got %s", cfg.ChallengeWindow)
	}
	if cfg.ReplayCacheSize != 42 || !cfg.RejectReplays {
		t.Errorf("replay: got size=%d reject=%v", cfg.ReplayCacheSize, cfg.RejectReplays)
	}
	if cfg.PublishChanSize != 1024 {
		t.Errorf("unparsable int should fall back to default, got %d", cfg.PublishChanSize)
	}
	if !cfg.NeedsPostgres() {
		t.Error("mirror should require postgres")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store", func(c *Config) { c.Store = "redis" }},
		{"mirror without leveldb", func(c *Config) { c.MirrorPostgres = true }},
		{"tiny window", func(c *Config) { c.ChallengeWindow = 10 * time.Millisecond }},
		{"zero channel", func(c *Config) { c.PublishChanSize = 0 }},
		{"zero batch", func(c *Config) { c.MirrorBatchSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
