package cmd

import (
	"context"
	"crypto/sha1"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/savloom-cli/internal/advisor"
	"github.com/KaramelBytes/savloom-cli/internal/prepare"
	"github.com/KaramelBytes/savloom-cli/internal/table"
	"github.com/KaramelBytes/savloom-cli/internal/utils"
)

var (
	prepOut           string
	prepMode          string
	prepColumns       []string
	prepCategoryLimit int
	prepOffline       bool
	prepSimplify      bool
	prepNoLabels      bool
	prepSheet         string
	prepSheetIndex    int
	prepDelimiter     string
	prepEncoding      string
	prepDryRun        bool
	prepBudgetLimit   float64
	prepJSON          bool
	prepQuiet         bool
	prepModel         string
	prepProvider      string
	prepOllamaHost    string
	prepTimeoutSec    int
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <file>",
	Short: "Encode a survey export and write the prepared bundle",
	Example: `  savloom prepare survey.csv
  savloom prepare survey.xlsx --sheet "Wave 2" --mode replace
  savloom prepare survey.csv --offline --simplify-names
  savloom prepare survey.csv --dry-run --budget-limit 0.05`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Ensure flags that can carry over between invocations are reset to
		// defaults unless explicitly provided in THIS run. Use Visit to
		// detect set flags in this parse.
		if f := cmd.Flags(); f != nil {
			provided := map[string]bool{}
			f.Visit(func(fl *pflag.Flag) {
				provided[fl.Name] = true
			})
			if !provided["out"] {
				prepOut = ""
			}
			if !provided["mode"] {
				prepMode = "derive"
			}
			if !provided["columns"] {
				prepColumns = nil
			}
			if !provided["category-limit"] {
				prepCategoryLimit = 0
			}
			if !provided["offline"] {
				prepOffline = false
			}
			if !provided["simplify-names"] {
				prepSimplify = false
			}
			if !provided["no-labels"] {
				prepNoLabels = false
			}
			if !provided["sheet"] {
				prepSheet = ""
			}
			if !provided["sheet-index"] {
				prepSheetIndex = 0
			}
			if !provided["delimiter"] {
				prepDelimiter = ""
			}
			if !provided["input-encoding"] {
				prepEncoding = ""
			}
			if !provided["dry-run"] {
				prepDryRun = false
			}
			if !provided["budget-limit"] {
				prepBudgetLimit = 0
			}
			if !provided["json"] {
				prepJSON = false
			}
			if !provided["quiet"] {
				prepQuiet = false
			}
			if !provided["model"] {
				prepModel = ""
			}
			if !provided["provider"] {
				prepProvider = ""
			}
			if !provided["ollama-host"] {
				prepOllamaHost = ""
			}
			if !provided["timeout-sec"] {
				prepTimeoutSec = 600
			}
		}
		if prepJSON {
			prepQuiet = true
		}

		input := args[0]

		mode := prepare.Mode(prepMode)
		switch mode {
		case prepare.ModeDerive, prepare.ModeReplace:
		default:
			return fmt.Errorf("invalid --mode: %s (use derive|replace)", prepMode)
		}

		delim, err := parseDelimiter(prepDelimiter)
		if err != nil {
			return err
		}
		encoding := prepEncoding
		if encoding == "" && cfg != nil {
			encoding = cfg.InputEncoding
		}
		ropt := table.ReadOptions{
			Delimiter:  delim,
			Encoding:   encoding,
			Sheet:      prepSheet,
			SheetIndex: prepSheetIndex,
		}

		t, err := table.Load(input, ropt)
		if err != nil {
			return err
		}

		categoryLimit := prepCategoryLimit
		if categoryLimit <= 0 && cfg != nil {
			categoryLimit = cfg.CategoryLimit
		}
		if categoryLimit <= 0 {
			categoryLimit = 15
		}
		simplify := prepSimplify
		if !cmd.Flags().Changed("simplify-names") && cfg != nil {
			simplify = cfg.SimplifyNames
		}
		genLabels := !prepNoLabels
		if !cmd.Flags().Changed("no-labels") && cfg != nil {
			genLabels = cfg.GenerateLabels
		}

		model := selectModel(cfg, prepModel)
		maxTokens := 1024
		temperature := 0.7
		if cfg != nil {
			if cfg.MaxTokens > 0 {
				maxTokens = cfg.MaxTokens
			}
			if cfg.Temperature > 0 {
				temperature = cfg.Temperature
			}
		}

		plan := planEncoding(t, prepColumns, categoryLimit, simplify, genLabels)

		var estCost float64
		if !prepOffline {
			if cost, ok := advisor.EstimateCostUSD(model, plan.PromptTokens, plan.Calls*maxTokens); ok {
				estCost = cost
			}
			if !prepQuiet {
				line := fmt.Sprintf("Advisor plan: %d calls, ≈%d prompt tokens", plan.Calls, plan.PromptTokens)
				if estCost > 0 {
					line += fmt.Sprintf(", estimated max cost ~$%.4f (%s)", estCost, model)
				}
				fmt.Println(line)
			}
			budgetLimit := prepBudgetLimit
			if budgetLimit <= 0 && cfg != nil {
				budgetLimit = cfg.BudgetLimit
			}
			if err := enforceBudget(estCost, budgetLimit); err != nil {
				return err
			}
		}

		base := outputBase(input, prepOut)

		if prepDryRun {
			return printDryRun(t, plan, input, base, string(mode), model, estCost)
		}

		var adv prepare.Advisor
		providerName := ""
		if !prepOffline {
			runtime, name, err := buildRuntime(cfg, runtimeOptions{
				ProviderFlag: prepProvider,
				OllamaHost:   prepOllamaHost,
			})
			if err != nil {
				return err
			}
			providerName = name
			adv = advisor.NewService(runtime, model, maxTokens, temperature)
			if debug {
				fmt.Fprintf(os.Stderr, "debug: advisor %s/%s, max_tokens=%d, temperature=%.1f\n", providerName, model, maxTokens, temperature)
			}
		}

		timeoutSec := prepTimeoutSec
		if timeoutSec <= 0 {
			timeoutSec = 600
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSec)*time.Second)
		defer cancel()

		sess := prepare.NewSession()
		opts := prepare.Options{
			Mode:           mode,
			Columns:        prepColumns,
			CategoryLimit:  categoryLimit,
			SimplifyNames:  simplify,
			GenerateLabels: genLabels,
		}
		m, outputs, err := prepareOne(ctx, sess, t, input, base, adv, opts, providerName, model, 0)
		if err != nil {
			return err
		}

		if prepJSON {
			b, err := utils.PrettyJSON(m)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}
		if !prepQuiet {
			for _, line := range sess.Log() {
				fmt.Println("  " + line)
			}
			encoded := 0
			for _, c := range m.Columns {
				if c.Encoded {
					encoded++
				}
			}
			fmt.Printf("✓ Prepared %s: %d columns (%d encoded)\n", input, len(m.Columns), encoded)
			for _, o := range outputs {
				fmt.Printf("  wrote %s\n", o)
			}
			if sess.AdvisorDown() {
				fmt.Println("⚠ Advisor unavailable during this run; affected columns were left unencoded.")
				if hint := advisorHint(sess.AdvisorCause(), providerName, model); hint != "" {
					fmt.Println("  Hint: " + hint)
				}
			}
		}
		return nil
	},
}

// prepareOne runs the pipeline over an already-loaded table inside sess and
// writes the bundle under base. logMark is the session log length before
// this file; the manifest carries only the lines written after it, so batch
// manifests stay per-file.
func prepareOne(ctx context.Context, sess *prepare.Session, t *table.Table, input, base string, adv prepare.Advisor, opts prepare.Options, providerName, model string, logMark int) (*prepare.Manifest, []string, error) {
	if err := prepare.Run(ctx, sess, t, adv, opts); err != nil {
		return nil, nil, err
	}
	b, err := prepare.BuildBundle(sess, t)
	if err != nil {
		return nil, nil, err
	}
	outputs := []string{base + ".csv", base + ".meta.yaml"}
	if err := b.WriteFiles(base, sess); err != nil {
		return nil, nil, err
	}
	m := prepare.BuildManifest(sess, b, input, outputs, opts.Mode, providerName, model)
	if logMark > 0 && logMark <= len(m.Log) {
		m.Log = m.Log[logMark:]
	}
	manifestPath := base + ".manifest.json"
	if err := prepare.WriteManifest(manifestPath, m); err != nil {
		return nil, nil, err
	}
	return m, append(outputs, manifestPath), nil
}

func printDryRun(t *table.Table, plan *encodingPlan, input, base, mode, model string, estCost float64) error {
	provider := "offline"
	if !prepOffline {
		provider = strings.ToLower(strings.TrimSpace(prepProvider))
		if provider == "" && cfg != nil && cfg.Provider != "" {
			provider = strings.ToLower(cfg.Provider)
		}
		if provider == "" {
			provider = advisor.ProviderOpenRouter
		}
	}
	outputs := []string{base + ".csv", base + ".meta.yaml", base + ".manifest.json"}

	if prepJSON {
		out := map[string]any{
			"input":              input,
			"mode":               mode,
			"provider":           provider,
			"model":              model,
			"candidates":         plan.Candidates,
			"skips":              plan.Skips,
			"advisor_calls":      plan.Calls,
			"prompt_tokens":      plan.PromptTokens,
			"prompt_breakdown":   plan.Breakdown,
			"estimated_cost_usd": estCost,
			"outputs":            outputs,
		}
		b, err := utils.PrettyJSON(out)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	// Deterministic dry-run request id for observability
	sum := sha1.Sum([]byte(input + "\x00" + strings.Join(plan.Candidates, "\x00")))
	rid := fmt.Sprintf("sim_%x", sum[:6])
	fmt.Println("--dry-run: no advisor calls will be made, no files written --")
	fmt.Printf("Request ID (dry-run): %s\n", rid)
	fmt.Println("\n[PLAN]")
	fmt.Printf("- Input: %s (%d rows, %d columns)\n", input, t.Rows(), len(t.Columns))
	fmt.Printf("- Mode: %s\n", mode)
	if prepOffline {
		fmt.Println("- Advisor: offline (no calls)")
	} else {
		fmt.Printf("- Advisor: %s model %s\n", provider, model)
	}
	if len(plan.Candidates) > 0 {
		fmt.Printf("- Candidates (%d): %s\n", len(plan.Candidates), strings.Join(plan.Candidates, ", "))
	} else {
		fmt.Println("- Candidates: (none)")
	}
	for _, s := range plan.Skips {
		fmt.Printf("- Skip %s\n", s)
	}
	if !prepOffline {
		fmt.Printf("- Advisor calls: %d (≈%d prompt tokens)\n", plan.Calls, plan.PromptTokens)
		for _, task := range []string{"encoding", "simplify", "labels"} {
			if n, ok := plan.Breakdown[task]; ok && n > 0 {
				fmt.Printf("    %s: ≈%d tokens\n", task, n)
			}
		}
		if estCost > 0 {
			fmt.Printf("- Estimated max cost: ~$%.4f\n", estCost)
		}
	}
	fmt.Printf("- Outputs: %s\n", strings.Join(outputs, ", "))
	return nil
}

func init() {
	rootCmd.AddCommand(prepareCmd)
	prepareCmd.Flags().StringVar(&prepOut, "out", "", "output base path (default <input stem>_prepared next to the input)")
	prepareCmd.Flags().StringVar(&prepMode, "mode", "derive", "where encoded values land: derive (new <col>_num column) | replace")
	prepareCmd.Flags().StringSliceVar(&prepColumns, "columns", nil, "only evaluate these columns for encoding (repeatable)")
	prepareCmd.Flags().IntVar(&prepCategoryLimit, "category-limit", 0, "max categories a column may have to be offered to the advisor (default from config)")
	prepareCmd.Flags().BoolVar(&prepOffline, "offline", false, "run without an advisor: no encoding, identifiers and bundle only")
	prepareCmd.Flags().BoolVar(&prepSimplify, "simplify-names", false, "rename columns to short identifiers before encoding")
	prepareCmd.Flags().BoolVar(&prepNoLabels, "no-labels", false, "keep original question text as variable labels")
	prepareCmd.Flags().StringVar(&prepSheet, "sheet", "", "XLSX: sheet name to load")
	prepareCmd.Flags().IntVar(&prepSheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (used if --sheet not provided)")
	prepareCmd.Flags().StringVar(&prepDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default by extension)")
	prepareCmd.Flags().StringVar(&prepEncoding, "input-encoding", "", "input encoding: utf-8 | latin-1 | windows-1252 (default from config)")
	prepareCmd.Flags().BoolVar(&prepDryRun, "dry-run", false, "print the encoding plan and cost estimate without calling the advisor or writing files")
	prepareCmd.Flags().Float64Var(&prepBudgetLimit, "budget-limit", 0, "fail if estimated max advisor cost (USD) exceeds this budget")
	prepareCmd.Flags().BoolVar(&prepJSON, "json", false, "emit the run manifest as JSON to stdout")
	prepareCmd.Flags().BoolVar(&prepQuiet, "quiet", false, "suppress non-essential output")
	prepareCmd.Flags().StringVar(&prepModel, "model", "", "override advisor model (default from config)")
	prepareCmd.Flags().StringVar(&prepProvider, "provider", "", "advisor provider: openrouter | ollama (default from config)")
	prepareCmd.Flags().StringVar(&prepOllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
	prepareCmd.Flags().IntVar(&prepTimeoutSec, "timeout-sec", 600, "advisor phase timeout in seconds for the whole run")
}
