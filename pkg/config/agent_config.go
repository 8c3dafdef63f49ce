package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be expressed as a human-readable
// string ("3600s", "24h", "7d") in YAML instead of a raw integer of
// nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// parseDuration extends time.ParseDuration with a "d" (day) unit, since
// the spec's own constants (7 days, 24h, 90 days) are naturally expressed
// that way.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 0 && s[len(s)-1] == 'd' {
		var days float64
		if _, err := fmt.Sscanf(s, "%fd", &days); err != nil {
			return 0, err
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(s)
}

// RPCProvider is one JSON-RPC endpoint entry in the provider pool (C1).
type RPCProvider struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty"`
	Weight     int    `yaml:"weight"`
	InitialRep int    `yaml:"initial_reputation"`
}

// ResolvedURL substitutes the API key environment variable, if any, into
// the provider URL in place of a literal "${API_KEY}" token.
func (p RPCProvider) ResolvedURL() string {
	if p.APIKeyEnv == "" {
		return p.URL
	}
	key := os.Getenv(p.APIKeyEnv)
	return substituteEnvVars(p.URL, map[string]string{p.APIKeyEnv: key})
}

// StrategySeed is the initial, pre-assign_keys configuration for one
// managed batch, supplied out of band (operators call mint_strategy with
// this data after start()).
type StrategySeed struct {
	Key                    uint32 `yaml:"key" json:"key"`
	ManagerAddress         string `yaml:"manager_address" json:"manager_address"`
	HintHelperAddress      string `yaml:"hint_helper_address" json:"hint_helper_address"`
	MultiTroveGetterAddr   string `yaml:"multi_trove_getter_address" json:"multi_trove_getter_address"`
	SortedTrovesAddress    string `yaml:"sorted_troves_address" json:"sorted_troves_address"`
	CollateralRegistryAddr string `yaml:"collateral_registry_address" json:"collateral_registry_address"`
	CollateralIndex        uint32 `yaml:"collateral_index" json:"collateral_index"`
	UpfrontFeePeriodSec    int64  `yaml:"upfront_fee_period_seconds" json:"upfront_fee_period_seconds"`
	TargetMinDebtFraction  string `yaml:"target_min_debt_fraction" json:"target_min_debt_fraction"` // decimal string, e18 fixed point
	RPCPrincipal           string `yaml:"rpc_principal,omitempty" json:"rpc_principal,omitempty"`
}

// SystemConstants are the retry/timeout constants §9(c) calls out as
// parameterizable rather than literal.
type SystemConstants struct {
	StrategyLockTimeout   Duration `yaml:"strategy_lock_timeout"`
	ReceiptPollInterval   Duration `yaml:"receipt_poll_interval"`
	ReceiptWaitBudget     Duration `yaml:"receipt_wait_budget"`
	NonceRetryMax         int      `yaml:"nonce_retry_max"`
	NonceRetryBaseBackoff Duration `yaml:"nonce_retry_base_backoff"`
	NonceRetryMaxBackoff  Duration `yaml:"nonce_retry_max_backoff"`

	StrategyTickInterval Duration `yaml:"strategy_tick_interval"`
	MintTickInterval     Duration `yaml:"mint_tick_interval"`
	HaltingTickInterval  Duration `yaml:"halting_tick_interval"`

	MinCkETH          string `yaml:"min_cketh"`
	MintAmountWei     string `yaml:"mint_amount_wei"`
	CyclesThreshold   string `yaml:"cycles_recharge_threshold"`
	MinSwapCycles     string `yaml:"min_swap_cycles"`
	SwapDiscountBps   int    `yaml:"swap_discount_bps"`
	EthXdrRate        string `yaml:"eth_xdr_rate"`   // decimal e18, XDR per 1 ETH
	CyclesPerXDR       uint64 `yaml:"cycles_per_xdr"` // 1 XDR = this many cycles
	HaltingWarningDur Duration `yaml:"halting_warning_duration"`
	HaltSuccessFloor  float64  `yaml:"halt_success_ratio_floor"`
	HaltFleetIdleDays int      `yaml:"halt_fleet_idle_days"`

	MdBps int `yaml:"decrease_margin_bps"` // M_d
	MuBps int `yaml:"increase_margin_bps"` // M_u

	RPCConsensusMin      int   `yaml:"rpc_consensus_min"`
	RPCConsensusDefault  int   `yaml:"rpc_consensus_default"`
	RPCMaxResponseBytes  int64 `yaml:"rpc_max_response_bytes_cap"`
	RPCReputationFloor   int   `yaml:"rpc_reputation_floor"`
	RPCReputationCeiling int   `yaml:"rpc_reputation_ceiling"`

	JournalRingSize int `yaml:"journal_ring_size"`
}

// AgentConfig is the nested, domain-specific settings document loaded
// from YAML per SPEC_FULL.md §10.3.
type AgentConfig struct {
	Environment string `yaml:"environment"` // "production" | "testnet" | "development"

	Chain struct {
		ChainID            int64  `yaml:"chain_id"`
		Name               string `yaml:"name"`
		CkETHHelperAddress string `yaml:"cketh_helper_address"`
		CkETHTokenAddress  string `yaml:"cketh_token_address"`
	} `yaml:"chain"`

	RPCProviders []RPCProvider `yaml:"rpc_providers"`

	Strategies []StrategySeed `yaml:"strategies"`

	Constants SystemConstants `yaml:"constants"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} and ${VAR:-default} tokens in s.
// overrides, if non-nil, takes precedence over os.Getenv for the named
// variables (used by RPCProvider.ResolvedURL to avoid leaking API keys
// through the process environment into unrelated lookups).
func substituteEnvVars(s string, overrides map[string]string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[3]
		if overrides != nil {
			if v, ok := overrides[name]; ok && v != "" {
				return v
			}
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return def
	})
}

// LoadAgentConfig reads and validates the YAML settings document at path.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent config: %w", err)
	}

	expanded := substituteEnvVars(string(raw), nil)

	var cfg AgentConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AgentConfig) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	c := &cfg.Constants
	if c.StrategyLockTimeout.Duration == 0 {
		c.StrategyLockTimeout = Duration{3600 * time.Second}
	}
	if c.ReceiptPollInterval.Duration == 0 {
		c.ReceiptPollInterval = Duration{15 * time.Second}
	}
	if c.ReceiptWaitBudget.Duration == 0 {
		c.ReceiptWaitBudget = Duration{5 * time.Minute}
	}
	if c.NonceRetryMax == 0 {
		c.NonceRetryMax = 3
	}
	if c.NonceRetryBaseBackoff.Duration == 0 {
		c.NonceRetryBaseBackoff = Duration{2 * time.Second}
	}
	if c.NonceRetryMaxBackoff.Duration == 0 {
		c.NonceRetryMaxBackoff = Duration{30 * time.Second}
	}
	if c.StrategyTickInterval.Duration == 0 {
		c.StrategyTickInterval = Duration{3600 * time.Second}
	}
	if c.MintTickInterval.Duration == 0 {
		c.MintTickInterval = Duration{24 * time.Hour}
	}
	if c.HaltingTickInterval.Duration == 0 {
		c.HaltingTickInterval = Duration{7 * 24 * time.Hour}
	}
	if c.HaltingWarningDur.Duration == 0 {
		c.HaltingWarningDur = Duration{7 * 24 * time.Hour}
	}
	if c.HaltSuccessFloor == 0 {
		c.HaltSuccessFloor = 0.5
	}
	if c.HaltFleetIdleDays == 0 {
		c.HaltFleetIdleDays = 30
	}
	if c.MdBps == 0 {
		c.MdBps = 2500
	}
	if c.MuBps == 0 {
		c.MuBps = 2500
	}
	if c.RPCConsensusMin == 0 {
		c.RPCConsensusMin = 2
	}
	if c.RPCConsensusDefault == 0 {
		c.RPCConsensusDefault = 3
	}
	if c.RPCMaxResponseBytes == 0 {
		c.RPCMaxResponseBytes = 2 * 1024 * 1024
	}
	if c.RPCReputationFloor == 0 {
		c.RPCReputationFloor = -100
	}
	if c.RPCReputationCeiling == 0 {
		c.RPCReputationCeiling = 100
	}
	if c.JournalRingSize == 0 {
		c.JournalRingSize = 1000
	}
	if c.SwapDiscountBps == 0 {
		c.SwapDiscountBps = 300
	}
	if c.EthXdrRate == "" {
		c.EthXdrRate = "2500000000000000000000" // 2500 XDR/ETH, e18
	}
	if c.CyclesPerXDR == 0 {
		c.CyclesPerXDR = 1_000_000_000_000
	}
}

// Validate applies environment-tiered checks: production deployments
// require a populated provider pool and at least the consensus minimum
// of entries; development deployments are more permissive.
func (cfg *AgentConfig) Validate() error {
	var errs []string

	if cfg.Chain.ChainID == 0 {
		errs = append(errs, "chain.chain_id must be set")
	}
	if len(cfg.RPCProviders) == 0 {
		errs = append(errs, "at least one rpc_providers entry is required")
	}
	if cfg.Environment == "production" && len(cfg.RPCProviders) < cfg.Constants.RPCConsensusDefault {
		errs = append(errs, fmt.Sprintf("production requires at least %d rpc providers for default consensus", cfg.Constants.RPCConsensusDefault))
	}
	for _, s := range cfg.Strategies {
		if s.ManagerAddress == "" {
			errs = append(errs, fmt.Sprintf("strategy %d: manager_address must be set", s.Key))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid agent config: %v", errs)
	}
	return nil
}

func (cfg *AgentConfig) IsProduction() bool { return cfg.Environment == "production" }
