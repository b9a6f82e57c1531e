package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ftahirops/xtriage/config"
	"github.com/ftahirops/xtriage/logging"
	"github.com/ftahirops/xtriage/model"
	"github.com/ftahirops/xtriage/tracing"
)

// Version info, set via SetVersion from ldflags.
var (
	appVersion = "dev"
	appCommit  = ""
	appDate    = ""
)

// SetVersion records build metadata for the version command.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// app is the state shared by every subcommand once configuration is loaded.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *slog.Logger
	lang    model.Language
	tracing *tracing.Provider
	out     io.Writer
	errOut  io.Writer
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "xtriage",
		Short: "Crash and hang triage for modded Skyrim SE",
		Long: `xtriage turns crash captures into a ranked list of suspect modules with
a bilingual explanation, and watches a running game's heartbeat to decide
which hangs and crashes deserve a dump.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.tracing.Shutdown(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/xtriage/config.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "auto", "log format (auto, text, json)")
	pf.String("lang", "en", "output language (en, ko)")
	pf.String("data-dir", "data", "knowledge-base directory")
	pf.String("history", "", "crash history database (default: in the config directory)")

	// Bind flags to viper (errors are nil when flag exists)
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = a.v.BindPFlag("language", pf.Lookup("lang"))
	_ = a.v.BindPFlag("data_dir", pf.Lookup("data-dir"))

	root.AddCommand(
		newAnalyzeCmd(a),
		newClassifyCmd(a),
		newMonitorCmd(a),
		newHistoryCmd(a),
		newKBCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()

	cfg, err := config.NewLoaderWithViper(a.v).WithConfigFile(a.cfgFile).Load()
	if err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("history"); f != nil && f.Changed {
		cfg.History.Path = f.Value.String()
	}
	a.cfg = cfg
	a.lang = model.ParseLanguage(cfg.Language)
	a.log = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: a.errOut})
	slog.SetDefault(a.log)

	tp, err := tracing.NewProvider(cmd.Context(), tracing.Config{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
		CAPath:   cfg.Tracing.CAPath,
	}, tracing.WithLogger(a.log), tracing.WithServiceVersion(appVersion))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	a.tracing = tp
	a.log.Debug("configuration loaded", "file", a.v.ConfigFileUsed(), "data_dir", cfg.DataDir)
	return nil
}
