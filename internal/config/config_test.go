package config

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestFromEnv_ParsesAndDefaults(t *testing.T) {
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("LOG_DIR", "./_testlogs")
	t.Setenv("PUBLIC_API_KEYS", "pub_a, pub_b,")
	t.Setenv("ADMIN_API_KEYS", "adm_x")
	t.Setenv("PROBE_IDS", "US.CF-01,FI.HE-01")
	t.Setenv("PROBE_TIMEOUT", "1500ms")
	t.Setenv("PROBE_STAGGER", "0s")
	t.Setenv("PUBLIC_RPM", "111")
	t.Setenv("ALERT_ON_RECOVERY", "false")
	t.Setenv("REDIS_DB", "3")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if cfg.Addr != ":9090" || cfg.LogDir != "./_testlogs" {
		t.Fatalf("addr/logdir wrong: %+v", cfg)
	}
	if len(cfg.PublicAPIKeys) != 2 || cfg.PublicAPIKeys[1] != "pub_b" {
		t.Fatalf("public keys wrong: %q", cfg.PublicAPIKeys)
	}
	if len(cfg.AdminAPIKeys) != 1 || cfg.AdminAPIKeys[0] != "adm_x" {
		t.Fatalf("admin keys wrong: %+v", cfg.AdminAPIKeys)
	}
	if len(cfg.ProbeIDs) != 2 {
		t.Fatalf("probe ids wrong: %q", cfg.ProbeIDs)
	}
	if cfg.ProbeTimeout != 1500*time.Millisecond || cfg.Stagger != 0 {
		t.Fatalf("durations wrong: %s %s", cfg.ProbeTimeout, cfg.Stagger)
	}
	if cfg.PublicRPM != 111 || cfg.AlertOnRecovery || cfg.RedisDB != 3 {
		t.Fatalf("overrides wrong: %+v", cfg)
	}

	// untouched defaults
	if cfg.ThresholdBytes != 65536 || cfg.LogLevel != "info" || cfg.RedisChannel != "dpiprobe:events" {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
	if cfg.AlertCooldown != 10*time.Minute || cfg.EventBuffer != 500 || cfg.ProbeInterval != 0 {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
}

func TestFromEnv_BadDuration(t *testing.T) {
	t.Setenv("PROBE_TIMEOUT", "soon")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFromEnv_RejectsOutOfRange(t *testing.T) {
	t.Setenv("PROBE_THRESHOLD_BYTES", "0")
	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "PROBE_THRESHOLD_BYTES") {
		t.Fatalf("expected threshold error, got %v", err)
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Config{
		ThresholdBytes: 0,
		ProbeTimeout:   time.Second,
		Stagger:        -time.Second,
		DNSTimeout:     time.Second,
		PublicRPM:      1,
		PublicBurst:    1,
		AdminRPM:       1,
		AdminBurst:     1,
		EventBuffer:    0,
	}
	err := cfg.Validate()
	if n := len(multierr.Errors(err)); n != 3 {
		t.Fatalf("want 3 errors, got %d: %v", n, err)
	}
}
