package kb

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// SourceStatus records the outcome of loading one knowledge-base file.
type SourceStatus struct {
	File    string `json:"file"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
}

// Loaded reports whether the source is enabled.
func (s SourceStatus) Loaded() bool { return s.Error == "" && s.Entries > 0 }

// Snapshot is one immutable generation of every knowledge base. A nil table
// means that source is disabled; its matchers then never fire.
type Snapshot struct {
	Dir      string
	LoadedAt time.Time

	Signatures     *Signatures
	PluginRules    *PluginRules
	Graphics       *GraphicsRules
	HookFrameworks *HookFrameworks
	Guides         *Guides

	Status []SourceStatus
}

// Empty returns a snapshot with every source disabled and the default hook list.
func Empty() *Snapshot {
	return &Snapshot{HookFrameworks: DefaultHookFrameworkSet()}
}

// LoadDir loads every knowledge base in dir concurrently. A file that is
// missing, unparsable or of the wrong version is logged and left disabled;
// only context cancellation is returned as an error.
func LoadDir(ctx context.Context, dir string, logger *slog.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	snap := &Snapshot{Dir: dir}
	status := make([]SourceStatus, 5)

	type source struct {
		file string
		load func(path string) (int, error)
	}
	sources := []source{
		{SignaturesFile, func(p string) (int, error) {
			t, err := LoadSignatures(p)
			snap.Signatures = t
			return t.Len(), err
		}},
		{PluginRulesFile, func(p string) (int, error) {
			t, err := LoadPluginRules(p)
			snap.PluginRules = t
			return t.Len(), err
		}},
		{GraphicsRulesFile, func(p string) (int, error) {
			t, err := LoadGraphicsRules(p)
			snap.Graphics = t
			return t.Len(), err
		}},
		{HookFrameworksFile, func(p string) (int, error) {
			t, err := LoadHookFrameworks(p)
			snap.HookFrameworks = t
			return t.Len(), err
		}},
		{GuidesFile, func(p string) (int, error) {
			t, err := LoadGuides(p)
			snap.Guides = t
			return t.Len(), err
		}},
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, src.file)
			n, err := src.load(path)
			status[i] = SourceStatus{File: src.file, Entries: n}
			if err != nil {
				status[i].Error = err.Error()
				level := slog.LevelWarn
				if errors.Is(err, fs.ErrNotExist) {
					level = slog.LevelDebug
				}
				logger.Log(gctx, level, "knowledge base disabled", "path", path, "error", err)
				return nil
			}
			logger.Debug("knowledge base loaded", "path", path, "entries", n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if snap.HookFrameworks == nil {
		snap.HookFrameworks = DefaultHookFrameworkSet()
	}
	snap.Status = status
	snap.LoadedAt = time.Now()
	return snap, nil
}

// Store publishes the current snapshot. Readers take one snapshot per
// analysis and never observe a partially reloaded table.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// NewStore returns a store holding snap, or Empty() when snap is nil.
func NewStore(snap *Snapshot) *Store {
	s := &Store{}
	s.Swap(snap)
	return s
}

// Current returns the published snapshot.
func (s *Store) Current() *Snapshot {
	return s.cur.Load()
}

// Swap publishes snap as the new generation.
func (s *Store) Swap(snap *Snapshot) {
	if snap == nil {
		snap = Empty()
	}
	s.cur.Store(snap)
}
