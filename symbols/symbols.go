// Package symbols resolves game-executable offsets to function names from a
// per-version address database.
package symbols

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ftahirops/xtriage/kb"
)

// FileName is the address database inside a data directory.
const FileName = "address_db/skyrimse_functions.json"

// Tolerance is how far past a known function start an offset still resolves.
const Tolerance = 0x100

// DefaultCacheSize bounds the resolved-offset cache.
const DefaultCacheSize = 4096

// ErrNoFunctions is returned when a database has no usable entries.
var ErrNoFunctions = errors.New("address database has no functions")

// Table maps offsets of one game version to function names.
type Table struct {
	names   map[uint64]string
	offsets []uint64
}

// Len returns the number of functions.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.offsets)
}

// Resolve returns the function at offset, or the nearest preceding function
// that starts less than Tolerance bytes before it.
func (t *Table) Resolve(offset uint64) (string, bool) {
	if t == nil {
		return "", false
	}
	if name, ok := t.names[offset]; ok {
		return name, true
	}
	i := sort.Search(len(t.offsets), func(i int) bool { return t.offsets[i] > offset })
	if i == 0 {
		return "", false
	}
	start := t.offsets[i-1]
	if offset-start >= Tolerance {
		return "", false
	}
	return t.names[start], true
}

func newTable(raw map[string]interface{}) *Table {
	t := &Table{names: make(map[uint64]string, len(raw))}
	for k, v := range raw {
		name, ok := v.(string)
		if !ok || name == "" {
			continue
		}
		off, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(k), "0x"), 16, 64)
		if err != nil {
			continue
		}
		t.names[off] = name
	}
	t.offsets = make([]uint64, 0, len(t.names))
	for off := range t.names {
		t.offsets = append(t.offsets, off)
	}
	sort.Slice(t.offsets, func(i, j int) bool { return t.offsets[i] < t.offsets[j] })
	return t
}

type document struct {
	GameVersions map[string]interface{} `json:"game_versions"`
}

// Load reads every game version of an address database. Version keys
// contain dots, so the document is loaded with a "/" key delimiter.
func Load(path string) (map[string]*Table, error) {
	k := koanf.New("/")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}
	if err := kb.CheckVersion(k.Get("version")); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var doc document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}

	out := make(map[string]*Table, len(doc.GameVersions))
	for ver, v := range doc.GameVersions {
		raw, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if fns, ok := raw["functions"].(map[string]interface{}); ok {
			raw = fns
		}
		if t := newTable(raw); t.Len() > 0 {
			out[ver] = t
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoFunctions)
	}
	return out, nil
}

type cacheKey struct {
	version string
	offset  uint64
}

type cached struct {
	name string
	ok   bool
}

// Resolver answers offset lookups for any loaded game version. Lookups are
// cached; Replace swaps the tables and drops the cache.
type Resolver struct {
	mu     sync.RWMutex
	tables map[string]*Table
	cache  *lru.Cache[cacheKey, cached]
}

// NewResolver creates an empty resolver with an LRU of cacheSize lookups.
func NewResolver(cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	c, err := lru.New[cacheKey, cached](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{tables: map[string]*Table{}, cache: c}, nil
}

// LoadFile replaces the tables with the contents of path.
func (r *Resolver) LoadFile(path string) error {
	tables, err := Load(path)
	if err != nil {
		return err
	}
	r.Replace(tables)
	return nil
}

// Replace installs new tables.
func (r *Resolver) Replace(tables map[string]*Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = tables
	r.cache.Purge()
}

// Versions lists the loaded game versions in sorted order.
func (r *Resolver) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tables))
	for v := range r.tables {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Resolve looks up offset in the table for gameVersion.
func (r *Resolver) Resolve(gameVersion string, offset uint64) (string, bool) {
	if r == nil || gameVersion == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := cacheKey{version: gameVersion, offset: offset}
	if c, ok := r.cache.Get(key); ok {
		return c.name, c.ok
	}
	name, ok := r.tables[gameVersion].Resolve(offset)
	r.cache.Add(key, cached{name: name, ok: ok})
	return name, ok
}
