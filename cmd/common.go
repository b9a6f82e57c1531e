package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/ftahirops/xtriage/engine"
	"github.com/ftahirops/xtriage/history"
	"github.com/ftahirops/xtriage/kb"
	"github.com/ftahirops/xtriage/model"
	"github.com/ftahirops/xtriage/symbols"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func checkFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unsupported format %q (text, json, yaml)", f)
}

// writeStructured prints v as indented JSON or YAML.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// loadKB loads the configured knowledge-base directory into a store.
func (a *app) loadKB(ctx context.Context) (*kb.Store, error) {
	snap, err := kb.LoadDir(ctx, a.cfg.DataDir, a.log)
	if err != nil {
		return nil, fmt.Errorf("load knowledge bases: %w", err)
	}
	return kb.NewStore(snap), nil
}

// loadSymbols loads the address database when present. A missing or broken
// database disables function resolution.
func (a *app) loadSymbols() *symbols.Resolver {
	r, err := symbols.NewResolver(a.cfg.Symbols.CacheSize)
	if err != nil {
		a.log.Warn("symbol cache disabled", "error", err)
		return nil
	}
	path := filepath.Join(a.cfg.DataDir, symbols.FileName)
	if err := r.LoadFile(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.log.Debug("address database not found", "path", path)
		} else {
			a.log.Warn("address database disabled", "path", path, "error", err)
		}
		return nil
	}
	return r
}

func (a *app) openHistory() (*history.Store, error) {
	return history.Open(a.cfg.History.Path,
		history.WithMaxEntries(a.cfg.History.MaxEntries),
		history.WithLogger(a.log))
}

// newAnalyzer wires the analyzer. The returned closer releases the history store.
func (a *app) newAnalyzer(ctx context.Context, withHistory bool, metrics *engine.Metrics) (*engine.Analyzer, *kb.Store, func(), error) {
	store, err := a.loadKB(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	opts := []engine.AnalyzerOption{
		engine.WithLogger(a.log),
		engine.WithExtraHookFrameworks(a.cfg.HookFrameworks...),
		engine.WithMetrics(metrics),
		engine.WithTracer(a.tracing.Tracer("github.com/ftahirops/xtriage/engine")),
		engine.WithRecapturePolicy(engine.RecapturePolicy{
			Enabled:          a.cfg.Recapture.Enabled,
			AutoAnalyze:      a.cfg.Analysis.AutoAnalyze,
			UnknownThreshold: a.cfg.Recapture.UnknownThreshold,
		}),
	}
	if r := a.loadSymbols(); r != nil {
		opts = append(opts, engine.WithSymbols(r))
	}

	closer := func() {}
	if withHistory {
		h, err := a.openHistory()
		if err != nil {
			a.log.Warn("history disabled", "path", a.cfg.History.Path, "error", err)
		} else {
			opts = append(opts, engine.WithHistory(h))
			closer = func() { _ = h.Close() }
		}
	}
	return engine.NewAnalyzer(store, opts...), store, closer, nil
}

func newMetrics() *engine.Metrics {
	return engine.NewMetrics(prometheus.NewRegistry())
}

// readIncident decodes an incident file.
func readIncident(path string) (*model.Incident, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inc model.Incident
	if err := json.Unmarshal(data, &inc); err != nil {
		return nil, fmt.Errorf("parse incident %q: %w", path, err)
	}
	if inc.DumpFile == "" {
		inc.DumpFile = filepath.Base(path)
	}
	return &inc, nil
}
