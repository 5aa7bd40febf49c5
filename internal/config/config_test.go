package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Gating.CommunicationUnlockScore != 60 || cfg.Gating.TechnicalPassScore != 60 || cfg.Gating.CodingPassScore != 100 {
		t.Errorf("gating = %+v", cfg.Gating)
	}
	if cfg.Persistence.RetryAttempts != 3 || cfg.Persistence.RetryBackoff != 200*time.Millisecond {
		t.Errorf("persistence = %+v", cfg.Persistence)
	}
	if cfg.Proctor.ReplyTimeout != 15*time.Second {
		t.Errorf("proctor reply timeout = %v", cfg.Proctor.ReplyTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("GATING_COMMUNICATION_UNLOCK_SCORE", "70.5")
	t.Setenv("CLEANUP_IDLE_TIMEOUT", "30m")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Gating.CommunicationUnlockScore != 70.5 {
		t.Errorf("unlock score = %v", cfg.Gating.CommunicationUnlockScore)
	}
	if cfg.Cleanup.IdleTimeout != 30*time.Minute {
		t.Errorf("idle timeout = %v", cfg.Cleanup.IdleTimeout)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("malformed port should fall back to default, got %d", cfg.Server.Port)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"AUTH_JWT_SECRET": ""}},
		{name: "unknown driver", env: map[string]string{"STORAGE_DRIVER": "sqlite"}},
		{name: "score out of range", env: map[string]string{"GATING_CODING_PASS_SCORE": "120"}},
		{name: "no retry attempts", env: map[string]string{"PERSISTENCE_RETRY_ATTEMPTS": "0"}},
		{name: "bad port", env: map[string]string{"SERVER_PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_JWT_SECRET", "secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
