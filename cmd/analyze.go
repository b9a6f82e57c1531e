package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xtriage/ui"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		format    string
		noHistory bool
		width     int
	)
	cmd := &cobra.Command{
		Use:   "analyze <incident.json>",
		Short: "Diagnose one crash or hang capture",
		Long: `Run the evidence pipeline on a decoded capture: module classification,
stack scoring, knowledge-base matching and history correlation. The outcome
is recorded in the crash history unless --no-history is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			inc, err := readIncident(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			analyzer, _, closeHistory, err := a.newAnalyzer(ctx, !noHistory, nil)
			if err != nil {
				return err
			}
			defer closeHistory()

			res, err := analyzer.Analyze(ctx, inc)
			if err != nil {
				return err
			}

			if format != formatText {
				return writeStructured(a.out, format, res)
			}
			fmt.Fprint(a.out, ui.RenderReport(res.Diagnosis, a.lang, width))
			if res.Recapture.Recapture {
				fmt.Fprintf(a.out, "\n full-memory recapture recommended: %d unresolved crashes in this bucket (threshold %d)\n",
					res.UnknownStreak, res.Recapture.Threshold)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format (text, json, yaml)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not read or write the crash history")
	cmd.Flags().IntVar(&width, "width", 100, "report width in columns")
	return cmd
}
