package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	cfg := Load()
	if cfg.ListenAddr != ":8090" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.StoreBackend != "goleveldb" {
		t.Fatalf("expected default store backend, got %q", cfg.StoreBackend)
	}
	if cfg.ShutdownGrace != 10*time.Second {
		t.Fatalf("expected default shutdown grace, got %s", cfg.ShutdownGrace)
	}
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv("AGENT_LISTEN_ADDR", ":1234")
	t.Setenv("AGENT_STORE_BACKEND", "memdb")
	t.Setenv("AGENT_METRICS_ENABLED", "false")
	t.Setenv("AGENT_SHUTDOWN_GRACE", "5s")

	cfg := Load()
	if cfg.ListenAddr != ":1234" {
		t.Fatalf("expected overridden listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.StoreBackend != "memdb" {
		t.Fatalf("expected overridden store backend, got %q", cfg.StoreBackend)
	}
	if cfg.MetricsEnabled {
		t.Fatal("expected metrics disabled")
	}
	if cfg.ShutdownGrace != 5*time.Second {
		t.Fatalf("expected overridden shutdown grace, got %s", cfg.ShutdownGrace)
	}
}

func TestGetEnvBoolFallsBackOnUnparsable(t *testing.T) {
	t.Setenv("AGENT_METRICS_ENABLED", "not-a-bool")
	if got := getEnvBool("AGENT_METRICS_ENABLED", true); !got {
		t.Fatal("expected fallback to default on unparsable bool")
	}
}

func TestGetEnvIntFallsBackOnUnparsable(t *testing.T) {
	t.Setenv("SOME_INT", "not-an-int")
	if got := getEnvInt("SOME_INT", 42); got != 42 {
		t.Fatalf("expected fallback to 42, got %d", got)
	}
	t.Setenv("SOME_INT", "7")
	if got := getEnvInt("SOME_INT", 42); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestValidateRequiresSupportedStoreBackend(t *testing.T) {
	cfg := &Config{ListenAddr: ":8090", StoreBackend: "sqlite", SignerKeyHex: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to reject an unsupported store backend")
	}
}

func TestValidateRequiresASigner(t *testing.T) {
	cfg := &Config{ListenAddr: ":8090", StoreBackend: "memdb"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to fail without a signer key or URL")
	}
}

func TestValidateRequiresAuditDSNWhenEnabled(t *testing.T) {
	cfg := &Config{ListenAddr: ":8090", StoreBackend: "memdb", SignerKeyHex: "x", AuditSinkEnabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to fail without an audit sink DSN")
	}
}

func TestValidatePassesWithMinimalValidConfig(t *testing.T) {
	cfg := &Config{ListenAddr: ":8090", StoreBackend: "memdb", SignerKeyHex: "x"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a valid config, got %v", err)
	}
}
