package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/ftahirops/xtriage/engine"
	"github.com/ftahirops/xtriage/kb"
	"github.com/ftahirops/xtriage/model"
	"github.com/ftahirops/xtriage/ui"
)

// incidentSuffix names the decoded capture the shim writes next to a dump.
const incidentSuffix = ".incident.json"

// diagnosisSuffix names the report written next to an analyzed dump.
const diagnosisSuffix = ".diagnosis.json"

type monitorOptions struct {
	tui         bool
	record      string
	metricsAddr string
	interval    time.Duration
}

func newMonitorCmd(a *app) *cobra.Command {
	var opts monitorOptions
	cmd := &cobra.Command{
		Use:   "monitor <telemetry.jsonl|->",
		Short: "Watch heartbeat and crash telemetry from the capture shim",
		Long: `Feed a telemetry stream through the hang detector and the crash
classifier. A file is replayed at --interval per heartbeat; "-" follows
standard input as the shim writes it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interval") {
				opts.interval = a.cfg.Monitor.Interval
			}
			if opts.metricsAddr == "" {
				opts.metricsAddr = a.cfg.Metrics.Addr
			}
			return a.runMonitor(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show the live terminal view")
	cmd.Flags().StringVar(&opts.record, "record", "", "copy every telemetry record to this file")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "replay pacing between heartbeats (0 = as fast as possible)")
	return cmd
}

func (a *app) runMonitor(ctx context.Context, input string, opts monitorOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var src engine.Source
	if input == "-" {
		src = engine.NewStreamSource(os.Stdin)
	} else {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		p, err := engine.NewPlayer(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("read telemetry: %w", err)
		}
		a.log.Info("replaying telemetry", "path", input, "records", p.Len())
		src = engine.Paced(p, opts.interval)
	}

	if opts.record != "" {
		rf, err := os.Create(opts.record)
		if err != nil {
			return err
		}
		defer rf.Close()
		src = engine.NewRecorder(src, rf)
	}

	metrics := newMetrics()
	if opts.metricsAddr != "" {
		srv := &http.Server{Addr: opts.metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Warn("metrics server stopped", "addr", opts.metricsAddr, "error", err)
			}
		}()
		defer srv.Close()
		a.log.Info("serving metrics", "addr", opts.metricsAddr)
	}

	analyzer, store, closeHistory, err := a.newAnalyzer(ctx, true, metrics)
	if err != nil {
		return err
	}
	defer closeHistory()

	if a.cfg.KB.Watch {
		w, err := kb.NewWatcher(a.cfg.DataDir, store, a.log, nil)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			a.log.Warn("knowledge-base watch disabled", "dir", a.cfg.DataDir, "error", err)
		} else {
			defer w.Stop()
		}
	}

	var launcher engine.ViewerLauncher
	if a.cfg.Viewer.Enabled {
		launcher = engine.CommandViewer{Command: a.cfg.Viewer.Command, Args: a.cfg.Viewer.Args}
	}

	cfg := engine.MonitorConfig{
		Thresholds: engine.HangThresholds{
			InGameSec:  a.cfg.Hang.ThresholdInGameSec,
			InMenuSec:  a.cfg.Hang.ThresholdInMenuSec,
			LoadingSec: a.cfg.Hang.ThresholdLoadingSec,
		},
		SuppressWhenNotForeground: a.cfg.Hang.SuppressWhenNotForeground,
		ForegroundGraceSec:        a.cfg.Hang.ForegroundGraceSec,
		AutoAnalyze:               a.cfg.Analysis.AutoAnalyze,
		AnalysisRequired:          a.cfg.Recapture.Enabled,
		AnalysisTimeout:           a.cfg.Analysis.Timeout,
		Analyze:                   a.analyzeDump(analyzer),
		DeleteBenignDumps:         a.cfg.Monitor.DeleteBenignDumps,
		Viewer:                    engine.NewDeferredViewer(launcher),
		EventLog:                  engine.NewEventLogWriter(a.cfg.Monitor.EventLog),
		Metrics:                   metrics,
		Logger:                    a.log,
		OnHang: func(d model.HangDetection) {
			a.log.Warn("hang capture requested", "seconds", d.SecondsSinceHeartbeat, "threshold", d.ThresholdSec)
		},
	}

	if !opts.tui {
		err := engine.NewMonitor(cfg).Run(ctx, src)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return ui.RunMonitor(ctx, a.lang, func(ctx context.Context, publish func(engine.MonitorStatus)) error {
		cfg.OnUpdate = publish
		return engine.NewMonitor(cfg).Run(ctx, src)
	})
}

// analyzeDump diagnoses a kept dump from the incident file written beside it
// and stores the diagnosis next to the dump.
func (a *app) analyzeDump(analyzer *engine.Analyzer) engine.AnalyzeFunc {
	return func(ctx context.Context, dumpPath string) error {
		inc, err := readIncident(dumpPath + incidentSuffix)
		if errors.Is(err, os.ErrNotExist) {
			a.log.Info("no incident file beside dump, skipping analysis", "dump", dumpPath)
			return nil
		}
		if err != nil {
			return err
		}
		inc.DumpFile = dumpPath

		res, err := analyzer.Analyze(ctx, inc)
		if err != nil {
			return err
		}
		if res.Recapture.Recapture {
			a.log.Warn("full-memory recapture requested",
				"bucket", res.Diagnosis.BucketKey,
				"unknown_streak", res.UnknownStreak,
				"threshold", res.Recapture.Threshold)
		}

		f, err := renameio.NewPendingFile(dumpPath + diagnosisSuffix)
		if err != nil {
			return err
		}
		defer f.Cleanup()
		if err := writeStructured(f, formatJSON, res); err != nil {
			return err
		}
		return f.CloseAtomicallyReplace()
	}
}
