package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := New()
	if cfg.ListenAddr != ":3000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LLMProvider != ProviderOpenAI {
		t.Errorf("LLMProvider = %q", cfg.LLMProvider)
	}
	if cfg.MemoryEveryN != 1 || cfg.HistoryLimit != 12 || cfg.PromoPitchCap != 3 {
		t.Errorf("unexpected policy defaults: %+v", cfg)
	}
	if cfg.SessionWindow != 0 {
		t.Errorf("SessionWindow = %v", cfg.SessionWindow)
	}
	if cfg.FollowupDelay != 2*time.Minute {
		t.Errorf("FollowupDelay = %v", cfg.FollowupDelay)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":8080")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("SESSION_WINDOW", "45m")
	t.Setenv("PROMO_PITCH_CAP", "5")

	cfg := New()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LLMProvider != ProviderAnthropic {
		t.Errorf("LLMProvider = %q", cfg.LLMProvider)
	}
	if cfg.SessionWindow != 45*time.Minute {
		t.Errorf("SessionWindow = %v", cfg.SessionWindow)
	}
	if cfg.PromoPitchCap != 5 {
		t.Errorf("PromoPitchCap = %d", cfg.PromoPitchCap)
	}
}
