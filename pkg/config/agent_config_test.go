package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshalYAMLSupportsDaySuffix(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("7d"), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != 7*24*time.Hour {
		t.Fatalf("expected 7 days, got %s", d.Duration)
	}
}

func TestDurationUnmarshalYAMLSupportsStdlibUnits(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("3600s"), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != 3600*time.Second {
		t.Fatalf("expected 3600s, got %s", d.Duration)
	}
}

func TestDurationUnmarshalYAMLRejectsGarbage(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("not-a-duration"), &d); err == nil {
		t.Fatal("expected an error for an unparsable duration")
	}
}

func TestDurationMarshalYAMLRoundtrips(t *testing.T) {
	d := Duration{Duration: 90 * 24 * time.Hour}
	out, err := yaml.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Duration
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal roundtrip: %v", err)
	}
	if back.Duration != d.Duration {
		t.Fatalf("expected roundtrip to preserve %s, got %s", d.Duration, back.Duration)
	}
}

func TestSubstituteEnvVarsWithDefault(t *testing.T) {
	got := substituteEnvVars("wss://example/${API_KEY:-demo}", nil)
	if got != "wss://example/demo" {
		t.Fatalf("expected default substitution, got %q", got)
	}
}

func TestSubstituteEnvVarsPrefersOverrideOverEnviron(t *testing.T) {
	t.Setenv("API_KEY", "from-environ")
	got := substituteEnvVars("${API_KEY}", map[string]string{"API_KEY": "from-override"})
	if got != "from-override" {
		t.Fatalf("expected override to win, got %q", got)
	}
}

func TestSubstituteEnvVarsReadsProcessEnviron(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	got := substituteEnvVars("${API_KEY}", nil)
	if got != "secret" {
		t.Fatalf("expected process env substitution, got %q", got)
	}
}

func TestRPCProviderResolvedURLWithoutAPIKeyEnv(t *testing.T) {
	p := RPCProvider{URL: "https://example.org"}
	if got := p.ResolvedURL(); got != "https://example.org" {
		t.Fatalf("expected unchanged URL, got %q", got)
	}
}

func TestRPCProviderResolvedURLSubstitutesKey(t *testing.T) {
	t.Setenv("MY_KEY", "abc123")
	p := RPCProvider{URL: "https://example.org/${MY_KEY}", APIKeyEnv: "MY_KEY"}
	if got := p.ResolvedURL(); got != "https://example.org/abc123" {
		t.Fatalf("expected key substitution, got %q", got)
	}
}

func TestApplyDefaultsFillsEveryConstant(t *testing.T) {
	cfg := &AgentConfig{}
	applyDefaults(cfg)
	if cfg.Environment != "development" {
		t.Fatalf("expected default environment, got %q", cfg.Environment)
	}
	if cfg.Constants.StrategyTickInterval.Duration != time.Hour {
		t.Fatalf("expected default tick interval of 1h, got %s", cfg.Constants.StrategyTickInterval.Duration)
	}
	if cfg.Constants.RPCConsensusDefault != 3 {
		t.Fatalf("expected default consensus of 3, got %d", cfg.Constants.RPCConsensusDefault)
	}
	if cfg.Constants.JournalRingSize != 1000 {
		t.Fatalf("expected default journal ring size, got %d", cfg.Constants.JournalRingSize)
	}
}

func TestApplyDefaultsDoesNotOverrideSetValues(t *testing.T) {
	cfg := &AgentConfig{Environment: "production"}
	cfg.Constants.RPCConsensusDefault = 5
	applyDefaults(cfg)
	if cfg.Environment != "production" {
		t.Fatalf("expected environment to stay production, got %q", cfg.Environment)
	}
	if cfg.Constants.RPCConsensusDefault != 5 {
		t.Fatalf("expected consensus default to stay 5, got %d", cfg.Constants.RPCConsensusDefault)
	}
}

func TestAgentConfigValidateRequiresChainID(t *testing.T) {
	cfg := &AgentConfig{RPCProviders: []RPCProvider{{Name: "a", URL: "http://x"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to require chain_id")
	}
}

func TestAgentConfigValidateRequiresProviders(t *testing.T) {
	cfg := &AgentConfig{Chain: struct {
		ChainID            int64  `yaml:"chain_id"`
		Name               string `yaml:"name"`
		CkETHHelperAddress string `yaml:"cketh_helper_address"`
		CkETHTokenAddress  string `yaml:"cketh_token_address"`
	}{ChainID: 1}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to require at least one rpc provider")
	}
}

func TestAgentConfigValidateProductionRequiresEnoughProviders(t *testing.T) {
	cfg := &AgentConfig{Environment: "production"}
	cfg.Chain.ChainID = 1
	cfg.RPCProviders = []RPCProvider{{Name: "a", URL: "http://x"}}
	cfg.Constants.RPCConsensusDefault = 3
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected production validation to require enough providers for consensus")
	}
}

func TestAgentConfigValidateRejectsUnmintedStrategyManager(t *testing.T) {
	cfg := &AgentConfig{}
	cfg.Chain.ChainID = 1
	cfg.RPCProviders = []RPCProvider{{Name: "a", URL: "http://x"}}
	cfg.Strategies = []StrategySeed{{Key: 0}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to require manager_address on every strategy seed")
	}
}

func TestIsProduction(t *testing.T) {
	cfg := &AgentConfig{Environment: "production"}
	if !cfg.IsProduction() {
		t.Fatal("expected IsProduction to be true")
	}
	cfg.Environment = "development"
	if cfg.IsProduction() {
		t.Fatal("expected IsProduction to be false")
	}
}

func TestLoadAgentConfigReadsAndExpandsYAML(t *testing.T) {
	t.Setenv("TEST_RPC_KEY", "shh")
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	yamlDoc := `
chain:
  chain_id: 1
  name: mainnet
rpc_providers:
  - name: primary
    url: "https://rpc.example/${TEST_RPC_KEY}"
    api_key_env: TEST_RPC_KEY
    weight: 1
strategies:
  - key: 0
    manager_address: "0xmanager"
constants:
  strategy_tick_interval: 1h
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	if cfg.Chain.ChainID != 1 {
		t.Fatalf("expected chain id 1, got %d", cfg.Chain.ChainID)
	}
	if len(cfg.RPCProviders) != 1 || cfg.RPCProviders[0].ResolvedURL() != "https://rpc.example/shh" {
		t.Fatalf("unexpected providers: %+v", cfg.RPCProviders)
	}
	if cfg.Constants.StrategyTickInterval.Duration != time.Hour {
		t.Fatalf("expected 1h tick interval, got %s", cfg.Constants.StrategyTickInterval.Duration)
	}
	// Defaults should have been applied for everything not set explicitly.
	if cfg.Constants.RPCConsensusDefault != 3 {
		t.Fatalf("expected default consensus, got %d", cfg.Constants.RPCConsensusDefault)
	}
}

func TestLoadAgentConfigPropagatesValidationErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(path, []byte("environment: development\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadAgentConfig(path); err == nil {
		t.Fatal("expected LoadAgentConfig to fail validation without chain_id or providers")
	}
}

func TestLoadAgentConfigMissingFile(t *testing.T) {
	if _, err := LoadAgentConfig("/nonexistent/agent.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
