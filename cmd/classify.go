package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xtriage/engine"
	"github.com/ftahirops/xtriage/model"
)

type classifyResult struct {
	Event   model.CrashEventInfo `json:"event" yaml:"event"`
	Verdict model.FilterVerdict  `json:"verdict" yaml:"verdict"`
	Name    string               `json:"exception_name" yaml:"exception_name"`
}

func newClassifyCmd(a *app) *cobra.Command {
	var (
		exitCode   uint32
		exception  string
		stateFlags uint32
		format     string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Decide whether a crash dump is worth keeping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			code, err := strconv.ParseUint(exception, 0, 32)
			if err != nil {
				return fmt.Errorf("--exception: %w", err)
			}
			ev := engine.NewCrashEvent(uint32(code), 0, 0, stateFlags)
			res := classifyResult{Event: ev, Verdict: engine.Classify(exitCode, ev), Name: engine.ExceptionName(ev.ExceptionCode)}

			if format != formatText {
				return writeStructured(a.out, format, res)
			}
			fmt.Fprintf(a.out, "%s (exception %s, strong=%t, in_menu=%t, exit=%d)\n",
				res.Verdict, res.Name, ev.IsStrong, ev.InMenu, exitCode)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&exitCode, "exit-code", 0, "process exit code")
	cmd.Flags().StringVar(&exception, "exception", "0", "exception code (decimal or 0x hex)")
	cmd.Flags().Uint32Var(&stateFlags, "state-flags", 0, "shared state flags at crash time (4 = in menu)")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format (text, json, yaml)")
	return cmd
}
