package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/savloom-cli/internal/advisor"
	"github.com/KaramelBytes/savloom-cli/internal/prepare"
	"github.com/KaramelBytes/savloom-cli/internal/table"
)

var (
	pbOutDir        string
	pbMode          string
	pbColumns       []string
	pbCategoryLimit int
	pbOffline       bool
	pbSimplify      bool
	pbNoLabels      bool
	pbSheet         string
	pbSheetIndex    int
	pbDelimiter     string
	pbEncoding      string
	pbQuiet         bool
	pbModel         string
	pbProvider      string
	pbOllamaHost    string
	pbTimeoutSec    int
)

var prepareBatchCmd = &cobra.Command{
	Use:   "prepare-batch <files...>",
	Short: "Prepare multiple survey exports sharing one session and advisor cache",
	Long: `Runs the preparation pipeline over every matching file. All files share
one session, so identical category sets are sent to the advisor once and an
advisor outage latches for the rest of the batch instead of retrying per
file. Failures are collected and summarized; the batch keeps going.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Ensure flags that can carry over between invocations are reset to
		// defaults unless explicitly provided in THIS run.
		if f := cmd.Flags(); f != nil {
			provided := map[string]bool{}
			f.Visit(func(fl *pflag.Flag) {
				provided[fl.Name] = true
			})
			if !provided["out-dir"] {
				pbOutDir = ""
			}
			if !provided["mode"] {
				pbMode = "derive"
			}
			if !provided["columns"] {
				pbColumns = nil
			}
			if !provided["category-limit"] {
				pbCategoryLimit = 0
			}
			if !provided["offline"] {
				pbOffline = false
			}
			if !provided["simplify-names"] {
				pbSimplify = false
			}
			if !provided["no-labels"] {
				pbNoLabels = false
			}
			if !provided["sheet"] {
				pbSheet = ""
			}
			if !provided["sheet-index"] {
				pbSheetIndex = 0
			}
			if !provided["delimiter"] {
				pbDelimiter = ""
			}
			if !provided["input-encoding"] {
				pbEncoding = ""
			}
			if !provided["quiet"] {
				pbQuiet = false
			}
			if !provided["model"] {
				pbModel = ""
			}
			if !provided["provider"] {
				pbProvider = ""
			}
			if !provided["ollama-host"] {
				pbOllamaHost = ""
			}
			if !provided["timeout-sec"] {
				pbTimeoutSec = 600
			}
		}

		var files []string
		seen := map[string]struct{}{}
		for _, arg := range args {
			matches, _ := filepath.Glob(arg)
			if len(matches) == 0 {
				// treat as literal path if exists
				if _, err := os.Stat(arg); err == nil {
					matches = []string{arg}
				}
			}
			for _, m := range matches {
				if _, ok := seen[m]; ok {
					continue
				}
				seen[m] = struct{}{}
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		sort.Strings(files)

		mode := prepare.Mode(pbMode)
		switch mode {
		case prepare.ModeDerive, prepare.ModeReplace:
		default:
			return fmt.Errorf("invalid --mode: %s (use derive|replace)", pbMode)
		}
		delim, err := parseDelimiter(pbDelimiter)
		if err != nil {
			return err
		}
		encoding := pbEncoding
		if encoding == "" && cfg != nil {
			encoding = cfg.InputEncoding
		}
		ropt := table.ReadOptions{
			Delimiter:  delim,
			Encoding:   encoding,
			Sheet:      pbSheet,
			SheetIndex: pbSheetIndex,
		}

		categoryLimit := pbCategoryLimit
		if categoryLimit <= 0 && cfg != nil {
			categoryLimit = cfg.CategoryLimit
		}
		if categoryLimit <= 0 {
			categoryLimit = 15
		}
		simplify := pbSimplify
		if !cmd.Flags().Changed("simplify-names") && cfg != nil {
			simplify = cfg.SimplifyNames
		}
		genLabels := !pbNoLabels
		if !cmd.Flags().Changed("no-labels") && cfg != nil {
			genLabels = cfg.GenerateLabels
		}
		opts := prepare.Options{
			Mode:           mode,
			Columns:        pbColumns,
			CategoryLimit:  categoryLimit,
			SimplifyNames:  simplify,
			GenerateLabels: genLabels,
		}

		model := selectModel(cfg, pbModel)
		var adv prepare.Advisor
		providerName := ""
		if !pbOffline {
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
			runtime, name, err := buildRuntime(cfg, runtimeOptions{
				ProviderFlag: pbProvider,
				OllamaHost:   pbOllamaHost,
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

		timeoutSec := pbTimeoutSec
		if timeoutSec <= 0 {
			timeoutSec = 600
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSec)*time.Second)
		defer cancel()

		// One session for the whole batch: one reply cache, one latch.
		sess := prepare.NewSession()
		used := map[string]bool{}
		var failures []string
		total := len(files)
		for i, path := range files {
			if !pbQuiet {
				fmt.Printf("[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			base := outputBase(path, "")
			if pbOutDir != "" {
				stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				base = filepath.Join(pbOutDir, stem+"_prepared")
			}
			if uniq := uniqueBase(base, used); uniq != base {
				if !pbQuiet {
					fmt.Printf("⚠ Output name collision, writing to %s to avoid overwrite.\n", filepath.Base(uniq)+".csv")
				}
				base = uniq
			}

			t, err := table.Load(path, ropt)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			logMark := len(sess.Log())
			m, _, err := prepareOne(ctx, sess, t, path, base, adv, opts, providerName, model, logMark)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", path, err))
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					break
				}
				continue
			}
			if !pbQuiet {
				encoded := 0
				for _, c := range m.Columns {
					if c.Encoded {
						encoded++
					}
				}
				fmt.Printf("✓ %s -> %s.csv (%d columns, %d encoded)\n", filepath.Base(path), filepath.Base(base), len(m.Columns), encoded)
			}
		}

		if !pbQuiet {
			fmt.Printf("Processed %d files: %d ok, %d failed\n", total, total-len(failures), len(failures))
			if sess.AdvisorDown() {
				fmt.Println("⚠ Advisor unavailable during this batch; affected columns were left unencoded.")
				if hint := advisorHint(sess.AdvisorCause(), providerName, model); hint != "" {
					fmt.Println("  Hint: " + hint)
				}
			}
		}
		if len(failures) > 0 {
			for _, f := range failures {
				fmt.Fprintln(os.Stderr, "✗", f)
			}
			return fmt.Errorf("%d of %d files failed", len(failures), total)
		}
		return nil
	},
}

// uniqueBase suffixes a bundle base the batch already claimed so two inputs
// named alike cannot overwrite each other.
func uniqueBase(base string, used map[string]bool) string {
	if !used[base] {
		used[base] = true
		return base
	}
	n := 2
	for {
		cand := fmt.Sprintf("%s__%d", base, n)
		if !used[cand] {
			used[cand] = true
			return cand
		}
		n++
	}
}

func init() {
	rootCmd.AddCommand(prepareBatchCmd)
	prepareBatchCmd.Flags().StringVar(&pbOutDir, "out-dir", "", "write bundles into this directory instead of next to each input")
	prepareBatchCmd.Flags().StringVar(&pbMode, "mode", "derive", "where encoded values land: derive (new <col>_num column) | replace")
	prepareBatchCmd.Flags().StringSliceVar(&pbColumns, "columns", nil, "only evaluate these columns for encoding (repeatable)")
	prepareBatchCmd.Flags().IntVar(&pbCategoryLimit, "category-limit", 0, "max categories a column may have to be offered to the advisor (default from config)")
	prepareBatchCmd.Flags().BoolVar(&pbOffline, "offline", false, "run without an advisor: no encoding, identifiers and bundle only")
	prepareBatchCmd.Flags().BoolVar(&pbSimplify, "simplify-names", false, "rename columns to short identifiers before encoding")
	prepareBatchCmd.Flags().BoolVar(&pbNoLabels, "no-labels", false, "keep original question text as variable labels")
	prepareBatchCmd.Flags().StringVar(&pbSheet, "sheet", "", "XLSX: sheet name to load")
	prepareBatchCmd.Flags().IntVar(&pbSheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (used if --sheet not provided)")
	prepareBatchCmd.Flags().StringVar(&pbDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default by extension)")
	prepareBatchCmd.Flags().StringVar(&pbEncoding, "input-encoding", "", "input encoding: utf-8 | latin-1 | windows-1252 (default from config)")
	prepareBatchCmd.Flags().BoolVar(&pbQuiet, "quiet", false, "suppress progress and non-essential output")
	prepareBatchCmd.Flags().StringVar(&pbModel, "model", "", "override advisor model (default from config)")
	prepareBatchCmd.Flags().StringVar(&pbProvider, "provider", "", "advisor provider: openrouter | ollama (default from config)")
	prepareBatchCmd.Flags().StringVar(&pbOllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
	prepareBatchCmd.Flags().IntVar(&pbTimeoutSec, "timeout-sec", 600, "advisor phase timeout in seconds for the whole batch")
}
