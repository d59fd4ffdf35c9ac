package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/savloom-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set Savloom configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		for _, key := range configKeys {
			v, _ := configValue(key)
			fmt.Printf("%s: %s\n", key, v)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfig(); err != nil {
			return err
		}
		v, err := configValue(args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if err := ensureConfig(); err != nil {
			return err
		}
		switch key {
		case "provider":
			switch strings.ToLower(val) {
			case "openrouter":
				cfg.Provider = "openrouter"
			case "ollama", "local":
				cfg.Provider = "ollama"
			default:
				return fmt.Errorf("invalid provider: %s (use openrouter or ollama)", val)
			}
		case "advisor_model":
			cfg.AdvisorModel = val
		case "openrouter_api_key":
			cfg.OpenRouterAPIKey = val
		case "category_limit":
			i, err := strconv.Atoi(val)
			if err != nil || i <= 0 {
				return fmt.Errorf("invalid int for category_limit: %v", val)
			}
			cfg.CategoryLimit = i
		case "simplify_names":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid bool for simplify_names: %v", val)
			}
			cfg.SimplifyNames = b
		case "generate_labels":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid bool for generate_labels: %v", val)
			}
			cfg.GenerateLabels = b
		case "input_encoding":
			switch strings.ToLower(val) {
			case "utf-8", "utf8", "latin-1", "latin1", "iso-8859-1", "windows-1252", "cp1252":
				cfg.InputEncoding = strings.ToLower(val)
			default:
				return fmt.Errorf("invalid input_encoding: %s (use utf-8|latin-1|windows-1252)", val)
			}
		case "budget_limit":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("invalid float for budget_limit: %v", val)
			}
			cfg.BudgetLimit = f
		case "max_tokens":
			i, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid int for max_tokens: %w", err)
			}
			cfg.MaxTokens = i
		case "temperature":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid float for temperature: %w", err)
			}
			cfg.Temperature = f
		case "http_timeout_sec":
			i, err := strconv.Atoi(val)
			if err != nil || i <= 0 {
				return fmt.Errorf("invalid int for http_timeout_sec: %v", val)
			}
			cfg.HTTPTimeoutSec = i
		case "retry_max_attempts":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for retry_max_attempts: %v", val)
			}
			cfg.RetryMaxAttempts = i
		case "retry_base_delay_ms":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for retry_base_delay_ms: %v", val)
			}
			cfg.RetryBaseDelayMs = i
		case "retry_max_delay_ms":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for retry_max_delay_ms: %v", val)
			}
			cfg.RetryMaxDelayMs = i
		case "ollama_host":
			cfg.OllamaHost = val
		case "ollama_timeout_sec":
			i, err := strconv.Atoi(val)
			if err != nil || i <= 0 {
				return fmt.Errorf("invalid int for ollama_timeout_sec: %v", val)
			}
			cfg.OllamaTimeoutSec = i
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

// configKeys fixes the listing order.
var configKeys = []string{
	"provider",
	"advisor_model",
	"openrouter_api_key",
	"category_limit",
	"simplify_names",
	"generate_labels",
	"input_encoding",
	"budget_limit",
	"max_tokens",
	"temperature",
	"http_timeout_sec",
	"retry_max_attempts",
	"retry_base_delay_ms",
	"retry_max_delay_ms",
	"ollama_host",
	"ollama_timeout_sec",
}

func configValue(key string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("no config loaded")
	}
	switch key {
	case "provider":
		return cfg.Provider, nil
	case "advisor_model":
		return cfg.AdvisorModel, nil
	case "openrouter_api_key":
		return mask(cfg.OpenRouterAPIKey), nil
	case "category_limit":
		return strconv.Itoa(cfg.CategoryLimit), nil
	case "simplify_names":
		return strconv.FormatBool(cfg.SimplifyNames), nil
	case "generate_labels":
		return strconv.FormatBool(cfg.GenerateLabels), nil
	case "input_encoding":
		return cfg.InputEncoding, nil
	case "budget_limit":
		return fmt.Sprintf("%.4f", cfg.BudgetLimit), nil
	case "max_tokens":
		return strconv.Itoa(cfg.MaxTokens), nil
	case "temperature":
		return fmt.Sprintf("%.3f", cfg.Temperature), nil
	case "http_timeout_sec":
		return strconv.Itoa(cfg.HTTPTimeoutSec), nil
	case "retry_max_attempts":
		return strconv.Itoa(cfg.RetryMaxAttempts), nil
	case "retry_base_delay_ms":
		return strconv.Itoa(cfg.RetryBaseDelayMs), nil
	case "retry_max_delay_ms":
		return strconv.Itoa(cfg.RetryMaxDelayMs), nil
	case "ollama_host":
		return cfg.OllamaHost, nil
	case "ollama_timeout_sec":
		return strconv.Itoa(cfg.OllamaTimeoutSec), nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

func ensureConfig() error {
	if cfg != nil {
		return nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
