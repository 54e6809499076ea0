// Package config loads the control plane's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/controlplane/pkg/errors"
)

// Default configuration values exported for documentation and validation.
const (
	DefaultBind             = "127.0.0.1:4590"
	DefaultModel            = "anthropic/claude-sonnet-4-5"
	DefaultClassifyTokens   = 256
	DefaultSynthesisTokens  = 2048
	DefaultMaxRetries       = 2
	DefaultGatewayTimeout   = 120 * time.Second
	DefaultRequestsPerSec   = 4.0
	DefaultLedgerPath       = "controlplane.db"
	DefaultSessionPath      = "sessions.db"
	DefaultContractDir      = "contracts"
	DefaultClassifyContract = "classify-v1"
	DefaultSynthContract    = "synthesize-v1"
)

// Duration wraps time.Duration so YAML configs can say "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// GatewayConfig points the executor at the LLM routing service.
type GatewayConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	Timeout        Duration `yaml:"timeout"`
	RequestsPerSec float64  `yaml:"requests_per_sec"`
	MaxRetries     int      `yaml:"max_retries"`
}

// BudgetConfig sets token ceilings. Zero means unbounded at that level.
type BudgetConfig struct {
	GlobalTokens    int `yaml:"global_tokens"`
	SessionTokens   int `yaml:"session_tokens"`
	ClassifyTokens  int `yaml:"classify_tokens"`
	SynthesisTokens int `yaml:"synthesis_tokens"`
}

// DispatchConfig tunes the supervisor's turn policy.
type DispatchConfig struct {
	ClassifyContractID   string         `yaml:"classify_contract_id"`
	SynthesizeContractID string         `yaml:"synthesize_contract_id"`
	MaxRetries           int            `yaml:"max_retries"`
	ToolsAllowed         []string       `yaml:"tools_allowed"`
	AcceptanceCriteria   map[string]any `yaml:"acceptance_criteria"`
}

// StorageConfig locates the persistent stores.
type StorageConfig struct {
	LedgerPath  string `yaml:"ledger_path"`
	SessionPath string `yaml:"session_path"`
	ContractDir string `yaml:"contract_dir"`
	LogDir      string `yaml:"log_dir"`
}

// Config is the complete control plane configuration.
type Config struct {
	Bind      string         `yaml:"bind"`
	BaseName  string         `yaml:"base_name"`
	Gateway   GatewayConfig  `yaml:"gateway"`
	Budget    BudgetConfig   `yaml:"budget"`
	Dispatch  DispatchConfig `yaml:"dispatch"`
	Storage   StorageConfig  `yaml:"storage"`
	Debug     bool           `yaml:"debug"`
}

// Default returns a configuration with every knob at its default.
func Default() *Config {
	return &Config{
		Bind:     DefaultBind,
		BaseName: "session",
		Gateway: GatewayConfig{
			Model:          DefaultModel,
			Timeout:        Duration(DefaultGatewayTimeout),
			RequestsPerSec: DefaultRequestsPerSec,
		},
		Budget: BudgetConfig{
			ClassifyTokens:  DefaultClassifyTokens,
			SynthesisTokens: DefaultSynthesisTokens,
		},
		Dispatch: DispatchConfig{
			ClassifyContractID:   DefaultClassifyContract,
			SynthesizeContractID: DefaultSynthContract,
			MaxRetries:           DefaultMaxRetries,
		},
		Storage: StorageConfig{
			LedgerPath:  DefaultLedgerPath,
			SessionPath: DefaultSessionPath,
			ContractDir: DefaultContractDir,
		},
	}
}

// Load reads a YAML config file, layering it over the defaults. A missing
// file is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the dispatch core cannot run with.
func (c *Config) Validate() error {
	if c.Dispatch.ClassifyContractID == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "dispatch.classify_contract_id is required")
	}
	if c.Dispatch.SynthesizeContractID == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "dispatch.synthesize_contract_id is required")
	}
	if c.Dispatch.MaxRetries < 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "dispatch.max_retries must not be negative, got %d", c.Dispatch.MaxRetries)
	}
	if c.Gateway.RequestsPerSec < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "gateway.requests_per_sec must not be negative")
	}
	for _, b := range []struct {
		name  string
		value int
	}{
		{"budget.global_tokens", c.Budget.GlobalTokens},
		{"budget.session_tokens", c.Budget.SessionTokens},
		{"budget.classify_tokens", c.Budget.ClassifyTokens},
		{"budget.synthesis_tokens", c.Budget.SynthesisTokens},
	} {
		if b.value < 0 {
			return errors.Newf(errors.ErrCodeConfigInvalid, "%s must not be negative, got %d", b.name, b.value)
		}
	}
	return nil
}
