package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/savloom-cli/internal/advisor"
	cfgpkg "github.com/KaramelBytes/savloom-cli/internal/config"
	"github.com/KaramelBytes/savloom-cli/internal/table"
	"github.com/KaramelBytes/savloom-cli/internal/utils"
)

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (advisor.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 3
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := strings.ToLower(strings.TrimSpace(opts.ProviderFlag))
	if providerName == "" && cfg != nil && cfg.Provider != "" {
		providerName = strings.ToLower(cfg.Provider)
	}
	if providerName == "" {
		providerName = advisor.ProviderOpenRouter
	}

	switch providerName {
	case "local":
		providerName = advisor.ProviderOllama
	case "openai", "anthropic", "google", "gemini", "meta", "llama":
		providerName = advisor.ProviderOpenRouter
	case "ollama":
		providerName = advisor.ProviderOllama
	}

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" && cfg != nil && cfg.OpenRouterAPIKey != "" {
		apiKey = cfg.OpenRouterAPIKey
	}

	rc := advisor.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      apiKey,
	}

	if providerName == advisor.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" {
			if v := os.Getenv("SAVLOOM_OLLAMA_HOST"); v != "" {
				host = v
			}
		}
		if host == "" && cfg != nil && cfg.OllamaHost != "" {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		rc.Host = host
		if v := os.Getenv("SAVLOOM_OLLAMA_TIMEOUT_SEC"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				rc.HTTPTimeout = time.Duration(n) * time.Second
			}
		}
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	client, ok := advisor.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s", providerName)
	}
	return client, providerName, nil
}

func selectModel(cfg *cfgpkg.Global, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.AdvisorModel != "" {
		return cfg.AdvisorModel
	}
	return "openai/gpt-4o-mini"
}

func enforceBudget(estCost, limit float64) error {
	if limit > 0 && estCost > 0 && estCost > limit {
		return fmt.Errorf("✗ Estimated cost ~$%.4f exceeds budget limit ~$%.4f", estCost, limit)
	}
	return nil
}

// outputBase returns the bundle base path for an input file: the --out value
// when given (a trailing .csv is tolerated), else <stem>_prepared next to
// the input.
func outputBase(input, out string) string {
	if out != "" {
		return strings.TrimSuffix(out, ".csv")
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem+"_prepared")
}

// parseDelimiter maps the --delimiter flag onto the loader's field
// separator. Empty picks by extension.
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case ";":
		return ';', nil
	case "tab", "\t", "\\t":
		return '\t', nil
	}
	return 0, fmt.Errorf("unsupported --delimiter: %q (use \",\", \";\" or \"tab\")", s)
}

// encodingPlan is what a dry run reports: the advisor traffic a real run
// would generate, after cache deduplication.
type encodingPlan struct {
	Candidates   []string
	Skips        []string // "name: reason"
	Calls        int
	PromptTokens int
	Breakdown    map[string]int // prompt tokens per advisor task
}

// planEncoding walks the loaded table the way a run would, without calling
// anything: candidate columns, skip reasons, and the token volume of the
// prompts that would be sent. Columns sharing a category set count once,
// matching the reply cache.
func planEncoding(t *table.Table, only []string, limit int, simplify, labels bool) *encodingPlan {
	plan := &encodingPlan{}
	wanted := make(map[string]bool, len(only))
	for _, n := range only {
		wanted[n] = true
	}
	seen := make(map[string]bool)
	encTokens := 0
	for _, col := range t.Columns {
		if len(only) > 0 && !wanted[col.Name] {
			continue
		}
		cats, reason := table.Candidacy(col, limit)
		if reason != "" {
			plan.Skips = append(plan.Skips, fmt.Sprintf("%s: %s", col.Name, reason))
			continue
		}
		plan.Candidates = append(plan.Candidates, col.Name)
		key := strings.Join(cats, "\x1f")
		if seen[key] {
			continue
		}
		seen[key] = true
		plan.Calls++
		encTokens += utils.CountTokens(advisor.EncodingPrompt(cats))
	}

	sections := map[string]string{}
	if simplify {
		sections["simplify"] = advisor.SimplifyPrompt(t.ColumnNames())
	}
	if labels {
		questions := make(map[string]string, len(t.Columns))
		for _, name := range t.ColumnNames() {
			questions[name] = name
		}
		sections["labels"] = advisor.LabelPrompt(questions)
	}
	plan.Calls += len(sections)
	plan.Breakdown = utils.TokenBreakdown(sections)
	plan.Breakdown["encoding"] = encTokens
	for _, n := range plan.Breakdown {
		plan.PromptTokens += n
	}
	return plan
}

// advisorHint turns a latched advisor failure into an actionable message.
// Empty when no specific advice applies.
func advisorHint(err error, providerName, model string) string {
	var (
		authErr *advisor.AuthError
		rlErr   *advisor.RateLimitError
		nfErr   *advisor.ModelNotFoundError
		qErr    *advisor.QuotaExceededError
		sErr    *advisor.ServerError
		unreach *advisor.UnreachableError
	)
	switch {
	case errors.As(err, &unreach):
		if providerName == advisor.ProviderOllama {
			return fmt.Sprintf("Ollama not reachable at %s. Ensure Ollama is running (see https://ollama.com) and the host is correct. You can set SAVLOOM_OLLAMA_HOST or config 'ollama_host'.", unreach.Host)
		}
		return "endpoint unreachable. Check your network and provider settings."
	case errors.As(err, &authErr):
		return "authentication failed: set OPENROUTER_API_KEY or add openrouter_api_key in config (~/.savloom/config.yaml)."
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Sprintf("rate limited, try again in ~%ds. Rerun to encode the skipped columns.", int(rlErr.RetryAfter.Seconds()))
		}
		return "rate limited by provider. Rerun to encode the skipped columns."
	case errors.As(err, &nfErr):
		if providerName == advisor.ProviderOllama {
			return fmt.Sprintf("local model not available (%s). Install it with 'ollama pull %s' or choose another model.", model, model)
		}
		return fmt.Sprintf("model not found (%s). Verify the model name against the built-in catalog.", model)
	case errors.As(err, &qErr):
		return "quota/billing issue. Check your provider account."
	case errors.As(err, &sErr):
		return "provider appears unavailable (server error). Rerun later to encode the skipped columns."
	}
	return ""
}
