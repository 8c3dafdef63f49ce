// Package config loads the agent's deployment-time settings from the
// environment. Structural, domain-specific settings (RPC providers,
// contract addresses, strategy seeds, system constants) live in the
// YAML-driven AgentConfig in agent_config.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds flat, deployment-time primitives read from the environment.
type Config struct {
	ListenAddr string

	StoreDataDir string
	StoreBackend string // "goleveldb", "memdb"

	LogLevel string

	AgentConfigPath string

	MetricsEnabled bool
	MetricsAddr    string

	AuditSinkEnabled  bool
	AuditSinkDSN      string
	FirestoreEnabled  bool
	FirestoreProject  string
	FirestoreCredFile string

	SignerKeyHex string // local dev signer; production deployments supply a remote signer endpoint instead
	SignerURL    string

	ShutdownGrace time.Duration
}

// Load populates a Config from the environment, applying defaults for
// anything unset. The following env vars are read: AGENT_LISTEN_ADDR,
// AGENT_STORE_DATA_DIR, AGENT_STORE_BACKEND, AGENT_LOG_LEVEL,
// AGENT_CONFIG_PATH, AGENT_METRICS_ENABLED, AGENT_METRICS_ADDR,
// AGENT_AUDIT_SINK_ENABLED, AGENT_AUDIT_SINK_DSN, AGENT_FIRESTORE_ENABLED,
// AGENT_FIRESTORE_PROJECT, GOOGLE_APPLICATION_CREDENTIALS,
// AGENT_SIGNER_KEY_HEX, AGENT_SIGNER_URL, AGENT_SHUTDOWN_GRACE.
func Load() *Config {
	return &Config{
		ListenAddr: getEnv("AGENT_LISTEN_ADDR", ":8090"),

		StoreDataDir: getEnv("AGENT_STORE_DATA_DIR", "./data"),
		StoreBackend: getEnv("AGENT_STORE_BACKEND", "goleveldb"),

		LogLevel: getEnv("AGENT_LOG_LEVEL", "info"),

		AgentConfigPath: getEnv("AGENT_CONFIG_PATH", "./agent.yaml"),

		MetricsEnabled: getEnvBool("AGENT_METRICS_ENABLED", true),
		MetricsAddr:    getEnv("AGENT_METRICS_ADDR", ":9090"),

		AuditSinkEnabled: getEnvBool("AGENT_AUDIT_SINK_ENABLED", false),
		AuditSinkDSN:     getEnv("AGENT_AUDIT_SINK_DSN", ""),

		FirestoreEnabled:  getEnvBool("AGENT_FIRESTORE_ENABLED", false),
		FirestoreProject:  getEnv("AGENT_FIRESTORE_PROJECT", ""),
		FirestoreCredFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		SignerKeyHex: getEnv("AGENT_SIGNER_KEY_HEX", ""),
		SignerURL:    getEnv("AGENT_SIGNER_URL", ""),

		ShutdownGrace: getEnvDuration("AGENT_SHUTDOWN_GRACE", 10*time.Second),
	}
}

// Validate checks required invariants and collects every violation found,
// rather than failing on the first one.
func (c *Config) Validate() error {
	var errs []string

	if c.ListenAddr == "" {
		errs = append(errs, "AGENT_LISTEN_ADDR must not be empty")
	}
	if c.StoreBackend != "goleveldb" && c.StoreBackend != "memdb" {
		errs = append(errs, fmt.Sprintf("AGENT_STORE_BACKEND: unsupported backend %q", c.StoreBackend))
	}
	if c.SignerKeyHex == "" && c.SignerURL == "" {
		errs = append(errs, "one of AGENT_SIGNER_KEY_HEX or AGENT_SIGNER_URL must be set")
	}
	if c.AuditSinkEnabled && c.AuditSinkDSN == "" {
		errs = append(errs, "AGENT_AUDIT_SINK_DSN is required when AGENT_AUDIT_SINK_ENABLED=true")
	}
	if c.FirestoreEnabled && c.FirestoreProject == "" {
		errs = append(errs, "AGENT_FIRESTORE_PROJECT is required when AGENT_FIRESTORE_ENABLED=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
