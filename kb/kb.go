// Package kb loads the versioned knowledge bases (crash signatures, plugin
// rules, graphics-injection rules, hook frameworks, troubleshooting guides).
//
// Every file must declare "version": SchemaVersion. A missing or mismatched
// version rejects the whole file; callers then run with that source disabled
// rather than trusting part of it.
package kb

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ftahirops/xtriage/model"
)

// SchemaVersion is the only knowledge-base schema this build understands.
const SchemaVersion = 1

// File names inside a data directory.
const (
	SignaturesFile     = "crash_signatures.json"
	PluginRulesFile    = "plugin_rules.json"
	GraphicsRulesFile  = "graphics_injection_rules.json"
	HookFrameworksFile = "hook_frameworks.json"
	GuidesFile         = "troubleshooting_guides.json"
)

var (
	ErrMissingVersion  = errors.New("knowledge base has no version field")
	ErrVersionMismatch = errors.New("knowledge base version mismatch")
	ErrEmpty           = errors.New("knowledge base has no usable entries")
)

// CheckVersion validates a raw top-level "version" value. Only a whole number
// equal to SchemaVersion is accepted; strings, booleans and fractions are
// mismatches.
func CheckVersion(raw interface{}) error {
	if raw == nil {
		return ErrMissingVersion
	}
	var v int64
	switch n := raw.(type) {
	case int:
		v = int64(n)
	case int64:
		v = n
	case uint64:
		if n > math.MaxInt64 {
			return fmt.Errorf("%w: got %d, expected %d", ErrVersionMismatch, n, SchemaVersion)
		}
		v = int64(n)
	case float64:
		if n != math.Trunc(n) {
			return fmt.Errorf("%w: got %v, expected %d", ErrVersionMismatch, n, SchemaVersion)
		}
		v = int64(n)
	default:
		return fmt.Errorf("%w: got %T %v, expected %d", ErrVersionMismatch, raw, raw, SchemaVersion)
	}
	if v != SchemaVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrVersionMismatch, v, SchemaVersion)
	}
	return nil
}

// loadDocument parses a JSON (or YAML) knowledge-base file into out after
// checking its version. JSON is a subset of YAML, so one parser covers both.
func loadDocument(path string, out interface{}) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load %q: %w", path, err)
	}
	if err := CheckVersion(k.Get("version")); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := k.UnmarshalWithConf("", out, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return fmt.Errorf("parse %q: %w", path, err)
	}
	return nil
}

// diagnosis is the bilingual payload shared by signatures and rules.
type diagnosis struct {
	CauseKO           string   `json:"cause_ko"`
	CauseEN           string   `json:"cause_en"`
	Confidence        string   `json:"confidence"`
	RecommendationsKO []string `json:"recommendations_ko"`
	RecommendationsEN []string `json:"recommendations_en"`
}

func (d diagnosis) cause() model.Text {
	return model.T(d.CauseEN, d.CauseKO)
}

func (d diagnosis) tier() model.ConfidenceTier {
	return model.ParseTier(d.Confidence)
}

// recommendations pairs the two lists by index. A list shorter than the other
// leaves that language empty, and Text.In falls back to the other half.
func (d diagnosis) recommendations() []model.Text {
	n := max(len(d.RecommendationsEN), len(d.RecommendationsKO))
	out := make([]model.Text, 0, n)
	for i := 0; i < n; i++ {
		var t model.Text
		if i < len(d.RecommendationsEN) {
			t.EN = d.RecommendationsEN[i]
		}
		if i < len(d.RecommendationsKO) {
			t.KO = d.RecommendationsKO[i]
		}
		out = append(out, t)
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lowerSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}
