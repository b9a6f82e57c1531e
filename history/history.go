// Package history persists analysis outcomes and derives the cross-incident
// statistics used to corroborate a diagnosis.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	_ "modernc.org/sqlite"

	"github.com/ftahirops/xtriage/model"
)

//go:embed migrations/001_entries.sql
var migrationV1 string

// Defaults for the bounded store.
const (
	DefaultMaxEntries  = 100
	DefaultModuleStats = 20
	exportVersion      = 1
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	// ErrEmptyBucket is returned for bucket queries without a key.
	ErrEmptyBucket = errors.New("history: empty bucket key")
	// ErrVersionMismatch is returned by Import for documents without the
	// export version this build writes.
	ErrVersionMismatch = errors.New("history: export version mismatch")
)

// Store is the SQLite-backed history. It is the only cross-incident mutable
// state; AddEntry is its only writer.
type Store struct {
	path       string
	db         *sql.DB
	maxEntries int
	logger     *slog.Logger
	mu         sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEntries bounds the number of retained entries; values < 1 keep the default.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (creating if needed) the history database at path.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, maxEntries: DefaultMaxEntries, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// AddEntry appends one outcome and trims the oldest rows beyond the bound.
func (s *Store) AddEntry(ctx context.Context, e model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	suspects, err := json.Marshal(nonNil(e.AllSuspects))
	if err != nil {
		return fmt.Errorf("marshaling suspects: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (
			timestamp_utc, dump_file, bucket_key, top_suspect,
			confidence, signature_id, all_suspects, unknown_fault
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(timeLayout), e.DumpFile, e.BucketKey, e.TopSuspect,
		e.Confidence.String(), e.SignatureID, string(suspects), boolInt(e.UnknownFault),
	)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM entries WHERE id NOT IN (
			SELECT id FROM entries ORDER BY id DESC LIMIT ?
		)`, s.maxEntries)
	if err != nil {
		return fmt.Errorf("trimming entries: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("history trimmed", "removed", n, "max_entries", s.maxEntries)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing entry: %w", err)
	}
	return nil
}

// Entries returns the newest lastN entries, oldest first. lastN <= 0 returns all.
func (s *Store) Entries(ctx context.Context, lastN int) ([]model.HistoryEntry, error) {
	limit := -1
	if lastN > 0 {
		limit = lastN
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_utc, dump_file, bucket_key, top_suspect,
		       confidence, signature_id, all_suspects, unknown_fault
		FROM entries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanEntry(rows *sql.Rows) (model.HistoryEntry, error) {
	var (
		e             model.HistoryEntry
		ts, conf, sus string
		unknown       int
	)
	if err := rows.Scan(&ts, &e.DumpFile, &e.BucketKey, &e.TopSuspect, &conf, &e.SignatureID, &sus, &unknown); err != nil {
		return e, fmt.Errorf("scanning entry: %w", err)
	}
	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, ts)
	}
	e.Timestamp = t
	e.Confidence = model.ParseTier(conf)
	e.UnknownFault = unknown != 0
	if sus != "" {
		if err := json.Unmarshal([]byte(sus), &e.AllSuspects); err != nil {
			return e, fmt.Errorf("decoding suspects: %w", err)
		}
	}
	return e, nil
}

// ModuleStats aggregates the last lastN entries per module: how often it was
// the top suspect and how often it appeared at all. Sorted by top-suspect
// count, then appearances, then name.
func (s *Store) ModuleStats(ctx context.Context, lastN int) ([]model.ModuleStats, error) {
	entries, err := s.Entries(ctx, lastN)
	if err != nil {
		return nil, err
	}
	return moduleStats(entries), nil
}

func moduleStats(entries []model.HistoryEntry) []model.ModuleStats {
	if len(entries) == 0 {
		return nil
	}
	total := len(entries)
	by := make(map[string]*model.ModuleStats)
	get := func(name string) *model.ModuleStats {
		ms, ok := by[name]
		if !ok {
			ms = &model.ModuleStats{Module: name, TotalCrashes: total}
			by[name] = ms
		}
		return ms
	}
	for _, e := range entries {
		if e.TopSuspect != "" {
			get(e.TopSuspect).AsTopSuspect++
		}
		for _, m := range e.AllSuspects {
			if m != "" {
				get(m).TotalAppearances++
			}
		}
	}

	out := make([]model.ModuleStats, 0, len(by))
	for _, ms := range by {
		out = append(out, *ms)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AsTopSuspect != b.AsTopSuspect {
			return a.AsTopSuspect > b.AsTopSuspect
		}
		if a.TotalAppearances != b.TotalAppearances {
			return a.TotalAppearances > b.TotalAppearances
		}
		return a.Module < b.Module
	})
	return out
}

// ModuleStatsFor returns the aggregate for one module (case-insensitive)
// over the last lastN entries.
func (s *Store) ModuleStatsFor(ctx context.Context, module string, lastN int) (model.ModuleStats, bool, error) {
	all, err := s.ModuleStats(ctx, lastN)
	if err != nil {
		return model.ModuleStats{}, false, err
	}
	for _, ms := range all {
		if strings.EqualFold(ms.Module, module) {
			return ms, true, nil
		}
	}
	return model.ModuleStats{}, false, nil
}

// BucketStats aggregates every retained entry with the given bucket key.
// Associated modules are the distinct top suspects, oldest first.
func (s *Store) BucketStats(ctx context.Context, bucketKey string) (model.BucketStats, error) {
	out := model.BucketStats{BucketKey: bucketKey}
	if bucketKey == "" {
		return out, ErrEmptyBucket
	}
	entries, err := s.bucketEntries(ctx, bucketKey)
	if err != nil {
		return out, err
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		out.Count++
		if out.FirstSeen.IsZero() || e.Timestamp.Before(out.FirstSeen) {
			out.FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(out.LastSeen) {
			out.LastSeen = e.Timestamp
		}
		key := strings.ToLower(e.TopSuspect)
		if e.TopSuspect != "" && !seen[key] {
			seen[key] = true
			out.Modules = append(out.Modules, e.TopSuspect)
		}
	}
	return out, nil
}

// UnknownStreak counts the most recent consecutive entries of a bucket whose
// fault module could not be resolved.
func (s *Store) UnknownStreak(ctx context.Context, bucketKey string) (uint32, error) {
	if bucketKey == "" {
		return 0, ErrEmptyBucket
	}
	entries, err := s.bucketEntries(ctx, bucketKey)
	if err != nil {
		return 0, err
	}
	var n uint32
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].UnknownFault {
			break
		}
		n++
	}
	return n, nil
}

func (s *Store) bucketEntries(ctx context.Context, bucketKey string) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_utc, dump_file, bucket_key, top_suspect,
		       confidence, signature_id, all_suspects, unknown_fault
		FROM entries WHERE bucket_key = ? ORDER BY id ASC`, bucketKey)
	if err != nil {
		return nil, fmt.Errorf("querying bucket: %w", err)
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bucket: %w", err)
	}
	return out, nil
}

type exportDoc struct {
	Version *int                 `json:"version"`
	Entries []model.HistoryEntry `json:"entries"`
}

// Export writes every retained entry as a versioned JSON document. The file
// is replaced atomically.
func (s *Store) Export(ctx context.Context, path string) error {
	entries, err := s.Entries(ctx, 0)
	if err != nil {
		return err
	}
	v := exportVersion
	data, err := json.MarshalIndent(exportDoc{Version: &v, Entries: nonNilEntries(entries)}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Import appends the entries of an exported JSON document in order.
// Documents without the current export version are rejected before anything
// is written. It returns the number of entries added.
func (s *Store) Import(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc exportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	switch {
	case doc.Version == nil:
		return 0, fmt.Errorf("%s: %w: no version field", path, ErrVersionMismatch)
	case *doc.Version != exportVersion:
		return 0, fmt.Errorf("%s: %w: got %d, expected %d", path, ErrVersionMismatch, *doc.Version, exportVersion)
	}
	for i, e := range doc.Entries {
		if err := s.AddEntry(ctx, e); err != nil {
			return i, err
		}
	}
	return len(doc.Entries), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilEntries(s []model.HistoryEntry) []model.HistoryEntry {
	if s == nil {
		return []model.HistoryEntry{}
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
