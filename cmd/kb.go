package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xtriage/kb"
	"github.com/ftahirops/xtriage/symbols"
)

// errInvalidKB is returned when a knowledge-base file exists but was rejected.
var errInvalidKB = errors.New("one or more knowledge bases were rejected")

func newKBCmd(a *app) *cobra.Command {
	kbCmd := &cobra.Command{
		Use:   "kb",
		Short: "Knowledge-base maintenance",
	}
	kbCmd.AddCommand(&cobra.Command{
		Use:   "validate [dir]",
		Short: "Load every knowledge base and report what was accepted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.DataDir
			if len(args) == 1 {
				dir = args[0]
			}
			snap, err := kb.LoadDir(cmd.Context(), dir, a.log)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tENTRIES\tSTATUS")
			rejected := false
			for _, s := range snap.Status {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.File, s.Entries, kbStatus(s.Error, s.Loaded()))
				if s.Error != "" && !isMissing(filepath.Join(dir, s.File)) {
					rejected = true
				}
			}

			symPath := filepath.Join(dir, symbols.FileName)
			tables, err := symbols.Load(symPath)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				fmt.Fprintf(tw, "%s\t0\t%s\n", symbols.FileName, "missing")
			case err != nil:
				fmt.Fprintf(tw, "%s\t0\t%s\n", symbols.FileName, err)
				rejected = true
			default:
				n := 0
				for _, t := range tables {
					n += t.Len()
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", symbols.FileName, n, "ok")
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if rejected {
				return errInvalidKB
			}
			return nil
		},
	})
	return kbCmd
}

func kbStatus(errText string, loaded bool) string {
	switch {
	case errText != "":
		return errText
	case loaded:
		return "ok"
	}
	return "empty"
}

// isMissing tells an absent file apart from one that failed to parse.
func isMissing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}
