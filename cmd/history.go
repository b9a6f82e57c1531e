package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xtriage/history"
	"github.com/ftahirops/xtriage/model"
	"github.com/ftahirops/xtriage/ui"
)

type historyReport struct {
	Modules []model.ModuleStats `json:"module_stats" yaml:"module_stats"`
	Bucket  *model.BucketStats  `json:"bucket,omitempty" yaml:"bucket,omitempty"`
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		bucket     string
		last       int
		format     string
		exportPath string
		importPath string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show which modules keep showing up in recent crashes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ctx := cmd.Context()
			h, err := a.openHistory()
			if err != nil {
				return err
			}
			defer h.Close()

			if importPath != "" {
				n, err := h.Import(ctx, importPath)
				if err != nil {
					return err
				}
				a.log.Info("history imported", "path", importPath, "entries", n)
			}
			if exportPath != "" {
				if err := h.Export(ctx, exportPath); err != nil {
					return err
				}
				a.log.Info("history exported", "path", exportPath)
			}

			var rep historyReport
			if rep.Modules, err = h.ModuleStats(ctx, last); err != nil {
				return err
			}
			if bucket != "" {
				bs, err := h.BucketStats(ctx, bucket)
				if err != nil {
					return err
				}
				rep.Bucket = &bs
			}

			if format != formatText {
				return writeStructured(a.out, format, rep)
			}
			fmt.Fprint(a.out, ui.RenderHistory(rep.Modules, rep.Bucket, a.lang, 100))
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "show statistics for one bucket key")
	cmd.Flags().IntVar(&last, "last", history.DefaultModuleStats, "number of recent entries module statistics cover")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format (text, json, yaml)")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the whole history to a JSON file")
	cmd.Flags().StringVar(&importPath, "import", "", "append entries from a JSON export")
	return cmd
}
