package config

import (
	"testing"
	"time"
)

func TestLoadRequiresRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultTargetStreak != 8 {
		t.Fatalf("target streak default = %d", cfg.DefaultTargetStreak)
	}
	if cfg.PollInterval != 2500*time.Millisecond {
		t.Fatalf("poll interval default = %v", cfg.PollInterval)
	}
	if cfg.LivenessTimeout != time.Minute || cfg.SearchTimeout != time.Minute {
		t.Fatalf("timeouts = %v/%v", cfg.LivenessTimeout, cfg.SearchTimeout)
	}
	if len(cfg.TournamentStartSizes) != 3 {
		t.Fatalf("start sizes = %v", cfg.TournamentStartSizes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DUEL_TARGET_STREAK", "5")
	t.Setenv("DUEL_POLL_INTERVAL", "1s")
	t.Setenv("DUEL_LIVENESS_TIMEOUT", "30")
	t.Setenv("TOURNAMENT_START_SIZES", "2, 4,x")
	t.Setenv("LOG_TO_FILE", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultTargetStreak != 5 {
		t.Fatalf("target streak = %d", cfg.DefaultTargetStreak)
	}
	if cfg.PollInterval != time.Second || cfg.LivenessTimeout != 30*time.Second {
		t.Fatalf("durations = %v/%v", cfg.PollInterval, cfg.LivenessTimeout)
	}
	if len(cfg.TournamentStartSizes) != 2 || cfg.TournamentStartSizes[1] != 4 {
		t.Fatalf("start sizes = %v", cfg.TournamentStartSizes)
	}
	if !cfg.Log.ToFile {
		t.Fatalf("expected LOG_TO_FILE")
	}
}

func TestLoadRejectsBadZone(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TOURNAMENT_TZ", "Mars/Olympus")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid zone error")
	}
}
