package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docmux/internal/engine"
)

func newEnginesCmd(root *rootOptions) *cobra.Command {
	var (
		category string
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List the engine priority table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := root.stack(cmd.Context())
			if err != nil {
				return err
			}
			defer stack.Close()

			cats := stack.Table.Categories()
			if category != "" {
				c, err := engine.ParseCategory(category)
				if err != nil {
					return err
				}
				cats = []engine.Category{c}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tENGINE\tMODE\tSUCCESS\tSPEED\tTIMEOUT")
			for _, c := range cats {
				ds, err := stack.Table.Descriptors(c)
				if err != nil {
					return err
				}
				listed := make(map[string]bool, len(ds))
				for _, d := range ds {
					listed[d.Name] = true
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n", c, d.Name, d.Mode, d.SuccessRateHint, d.Speed, stack.Controller.Timeout(c))
				}
				if !all {
					continue
				}
				for _, name := range stack.Registry.Names(c) {
					if !listed[name] {
						fmt.Fprintf(tw, "%s\t%s\tunlisted\t-\t-\t-\n", c, name)
					}
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only show one category")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "also list registered engines the table leaves out")
	return cmd
}
