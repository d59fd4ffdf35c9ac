package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	Provider         string `mapstructure:"provider" yaml:"provider"`
	AdvisorModel     string `mapstructure:"advisor_model" yaml:"advisor_model"`
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key" yaml:"openrouter_api_key"`

	// Encoding behavior
	CategoryLimit  int     `mapstructure:"category_limit" yaml:"category_limit"`
	SimplifyNames  bool    `mapstructure:"simplify_names" yaml:"simplify_names"`
	GenerateLabels bool    `mapstructure:"generate_labels" yaml:"generate_labels"`
	InputEncoding  string  `mapstructure:"input_encoding" yaml:"input_encoding"`
	BudgetLimit    float64 `mapstructure:"budget_limit" yaml:"budget_limit"`

	// Generation parameters
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.savloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".savloom")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("SAVLOOM")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("provider", "openrouter")
	v.SetDefault("advisor_model", "openai/gpt-4o-mini")
	v.SetDefault("category_limit", 15)
	v.SetDefault("simplify_names", false)
	v.SetDefault("generate_labels", true)
	v.SetDefault("input_encoding", "utf-8")
	v.SetDefault("budget_limit", 0.0)
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("temperature", 0.7)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 60)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".savloom")
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Keep the advisor gate inside a range where value labels stay readable.
	if c.CategoryLimit <= 0 {
		c.CategoryLimit = 15
	}
	return &c, nil
}
