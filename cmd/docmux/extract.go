package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docmux/internal/engine"
	"github.com/dgallion1/docmux/internal/fallback"
)

func newExtractCmd(root *rootOptions) *cobra.Command {
	var (
		category string
		asJSON   bool
		detail   bool
	)
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract a document and print its text",
		Example: `  docmux extract invoice.pdf
  docmux extract scan.jpg --category image --json
  docmux extract report.docx --detail`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return err
			}

			var cat engine.Category
			var err error
			if category != "" {
				cat, err = engine.ParseCategory(category)
			} else {
				cat, err = engine.DetectCategory(path)
			}
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			stack, err := root.stack(ctx)
			if err != nil {
				return err
			}
			defer stack.Close()

			out, err := stack.Controller.ExtractDetailed(ctx, path, cat)
			if err != nil {
				return err
			}
			return printOutcome(cmd, out, asJSON, detail)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "document category (pdf, image, spreadsheet, word); detected when omitted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the canonical document as JSON")
	cmd.Flags().BoolVar(&detail, "detail", false, "print the JSON attempt report")
	return cmd
}

func printOutcome(cmd *cobra.Command, out fallback.Outcome, asJSON, detail bool) error {
	w := cmd.OutOrStdout()
	switch {
	case detail:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Document)
	}

	if out.Status == fallback.StatusExhausted {
		return fmt.Errorf("no engine produced content for %s (%d attempts)", out.Document.FileName, len(out.Attempts))
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "engine: %s\n", out.Engine)
	_, err := fmt.Fprintln(w, out.Document.Text)
	return err
}
