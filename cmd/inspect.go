package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/savloom-cli/internal/table"
	"github.com/KaramelBytes/savloom-cli/internal/utils"
)

var (
	insOutputPath    string
	insCategoryLimit int
	insSheet         string
	insSheetIndex    int
	insDelimiter     string
	insEncoding      string
	insJSON          bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Report columns, categories, and encoding candidacy without an advisor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		delim, err := parseDelimiter(insDelimiter)
		if err != nil {
			return err
		}
		encoding := insEncoding
		if encoding == "" && cfg != nil {
			encoding = cfg.InputEncoding
		}
		t, err := table.Load(path, table.ReadOptions{
			Delimiter:  delim,
			Encoding:   encoding,
			Sheet:      insSheet,
			SheetIndex: insSheetIndex,
		})
		if err != nil {
			return err
		}

		limit := insCategoryLimit
		if limit <= 0 && cfg != nil {
			limit = cfg.CategoryLimit
		}
		if limit <= 0 {
			limit = 15
		}
		s := table.Summarize(t, limit)

		var out string
		if insJSON {
			b, err := utils.PrettyJSON(s)
			if err != nil {
				return err
			}
			out = string(b)
		} else {
			out = s.Markdown()
		}

		if insOutputPath != "" {
			if err := os.WriteFile(insOutputPath, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote report to %s\n", insOutputPath)
			return nil
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&insOutputPath, "output", "o", "", "optional path to write the report")
	inspectCmd.Flags().IntVar(&insCategoryLimit, "category-limit", 0, "max categories a column may have to be offered to the advisor (default from config)")
	inspectCmd.Flags().StringVar(&insSheet, "sheet", "", "XLSX: sheet name to inspect")
	inspectCmd.Flags().IntVar(&insSheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (used if --sheet not provided)")
	inspectCmd.Flags().StringVar(&insDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default by extension)")
	inspectCmd.Flags().StringVar(&insEncoding, "input-encoding", "", "input encoding: utf-8 | latin-1 | windows-1252 (default from config)")
	inspectCmd.Flags().BoolVar(&insJSON, "json", false, "emit the report as JSON")
}
