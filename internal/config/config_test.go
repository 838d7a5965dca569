package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"MODE", "HTTP_ADDR", "DB_DRIVER", "SNAPSHOT_DRIVER", "COUNTDOWN_PERIOD", "SWEEP_SCHEDULE", "CORS_ORIGINS_OFFLINE"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Mode != ModeOffline || cfg.HTTPAddr != ":8080" || cfg.DBDriver != "sqlite" || cfg.SnapshotDriver != "fs" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.CountdownPeriod != time.Second {
		t.Errorf("CountdownPeriod = %s, want 1s", cfg.CountdownPeriod)
	}
	if got := cfg.CORSOrigins(); len(got) != 2 || got[0] != "http://localhost:3000" {
		t.Errorf("CORSOrigins() = %v", got)
	}
}

func TestEnvParsers(t *testing.T) {
	tests := []struct {
		name, val string
		want      time.Duration
	}{
		{"go duration", "250ms", 250 * time.Millisecond},
		{"plain seconds", "5", 5 * time.Second},
		{"garbage", "soon", time.Minute},
		{"empty", "", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("X_DURATION", tt.val)
			if got := envDuration("X_DURATION", time.Minute); got != tt.want {
				t.Errorf("envDuration(%q) = %s, want %s", tt.val, got, tt.want)
			}
		})
	}

	t.Setenv("X_INT", "3")
	if got := envInt("X_INT", 0); got != 3 {
		t.Errorf("envInt() = %d, want 3", got)
	}
	t.Setenv("X_BOOL", "no")
	if envBool("X_BOOL", true) {
		t.Errorf("envBool(no) = true")
	}
	t.Setenv("X_CSV", " a, ,b ")
	if got := csvOr("X_CSV", ""); len(got) != 2 || got[1] != "b" {
		t.Errorf("csvOr() = %v", got)
	}
}
