package kb

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/ftahirops/xtriage/model"
)

// headerVersionEpsilon absorbs float rounding of plugin header versions (1.7 vs 1.71).
const headerVersionEpsilon = 1e-6

// implicitMasters are loaded by the runtime even when absent from plugins.txt.
var implicitMasters = map[string]bool{
	"skyrim.esm":                   true,
	"update.esm":                   true,
	"dawnguard.esm":                true,
	"hearthfires.esm":              true,
	"dragonborn.esm":               true,
	"ccbgssse001-fish.esm":         true,
	"ccqdrsse001-survivalmode.esl": true,
	"ccbgssse037-curios.esl":       true,
	"ccbgssse025-advdsgs.esm":      true,
	"_resourcepack.esl":            true,
	"resourcepack.esl":             true,
}

type pluginRulesDoc struct {
	Rules []pluginRuleEntry `json:"rules"`
}

type pluginRuleEntry struct {
	ID        string          `json:"id"`
	Condition pluginCondition `json:"condition"`
	Diagnosis diagnosis       `json:"diagnosis"`
}

type pluginCondition struct {
	AnyPluginHeaderVersionGte *float64             `json:"any_plugin_header_version_gte"`
	GameVersionLt             string               `json:"game_version_lt"`
	ModuleNotLoaded           string               `json:"module_not_loaded"`
	ModuleLoaded              string               `json:"module_loaded"`
	HasMissingMaster          *bool                `json:"has_missing_master"`
	EslCountGte               *int                 `json:"esl_count_gte"`
	ModuleVersions            []moduleVersionEntry `json:"module_versions"`
}

// moduleVersionEntry constrains the file version of one loaded module. Both
// bounds are optional; the module must be loaded with a parseable version.
type moduleVersionEntry struct {
	Module     string `json:"module"`
	VersionLt  string `json:"version_lt"`
	VersionGte string `json:"version_gte"`
}

type moduleConstraint struct {
	module string
	lt     *version.Version
	gte    *version.Version
}

func (c moduleConstraint) holds(versions map[string]string) bool {
	raw, ok := versions[c.module]
	if !ok || raw == "" {
		return false
	}
	v, err := version.NewVersion(raw)
	if err != nil {
		return false
	}
	if c.lt != nil && !v.LessThan(c.lt) {
		return false
	}
	if c.gte != nil && v.LessThan(c.gte) {
		return false
	}
	return true
}

func parseModuleConstraint(e moduleVersionEntry) (moduleConstraint, error) {
	c := moduleConstraint{module: strings.ToLower(strings.TrimSpace(e.Module))}
	if c.module == "" {
		return c, fmt.Errorf("module_versions: empty module")
	}
	var err error
	if e.VersionLt != "" {
		if c.lt, err = version.NewVersion(e.VersionLt); err != nil {
			return c, fmt.Errorf("module_versions %s: version_lt: %w", c.module, err)
		}
	}
	if e.VersionGte != "" {
		if c.gte, err = version.NewVersion(e.VersionGte); err != nil {
			return c, fmt.Errorf("module_versions %s: version_gte: %w", c.module, err)
		}
	}
	return c, nil
}

type pluginRule struct {
	id     string
	cond   pluginCondition
	gameLt *version.Version
	mods   []moduleConstraint

	cause model.Text
	tier  model.ConfidenceTier
	recs  []model.Text
}

// PluginRules is an immutable plugin-compatibility rule table.
type PluginRules struct {
	rules []pluginRule
}

// PluginContext is the evidence plugin rules are evaluated against.
// ModuleVersions maps lower-case module file names to their file versions.
type PluginContext struct {
	Scan           *model.PluginScan
	LoadedModules  []string
	ModuleVersions map[string]string
	GameVersion    string
}

// Len returns the number of loaded rules; zero for a nil table.
func (p *PluginRules) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// LoadPluginRules reads a plugin rule database.
func LoadPluginRules(path string) (*PluginRules, error) {
	var doc pluginRulesDoc
	if err := loadDocument(path, &doc); err != nil {
		return nil, err
	}

	out := &PluginRules{rules: make([]pluginRule, 0, len(doc.Rules))}
	for _, e := range doc.Rules {
		if e.ID == "" {
			continue
		}
		r := pluginRule{
			id:    e.ID,
			cond:  e.Condition,
			cause: e.Diagnosis.cause(),
			tier:  e.Diagnosis.tier(),
			recs:  e.Diagnosis.recommendations(),
		}
		r.cond.ModuleNotLoaded = strings.ToLower(strings.TrimSpace(r.cond.ModuleNotLoaded))
		r.cond.ModuleLoaded = strings.ToLower(strings.TrimSpace(r.cond.ModuleLoaded))
		if r.cond.EslCountGte != nil && *r.cond.EslCountGte < 0 {
			r.cond.EslCountGte = nil
		}
		if e.Condition.GameVersionLt != "" {
			v, err := version.NewVersion(e.Condition.GameVersionLt)
			if err != nil {
				continue
			}
			r.gameLt = v
		}
		valid := true
		for _, mv := range e.Condition.ModuleVersions {
			c, err := parseModuleConstraint(mv)
			if err != nil {
				valid = false
				break
			}
			r.mods = append(r.mods, c)
		}
		if !valid {
			continue
		}
		out.rules = append(out.rules, r)
	}
	if len(out.rules) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return out, nil
}

// Evaluate returns every rule whose conditions all hold, in file order.
// Without a plugin scan nothing fires.
func (p *PluginRules) Evaluate(ctx PluginContext) []model.RuleMatch {
	if p == nil || ctx.Scan == nil {
		return nil
	}
	missing := MissingMasters(ctx.Scan)
	eslCount := CountESL(ctx.Scan)
	loaded := lowerSet(ctx.LoadedModules)

	var game *version.Version
	if ctx.GameVersion != "" {
		game, _ = version.NewVersion(ctx.GameVersion)
	}

	var out []model.RuleMatch
	for _, r := range p.rules {
		c := r.cond
		if c.AnyPluginHeaderVersionGte != nil && !AnyHeaderVersionAtLeast(ctx.Scan, *c.AnyPluginHeaderVersionGte) {
			continue
		}
		if r.gameLt != nil && (game == nil || !game.LessThan(r.gameLt)) {
			continue
		}
		if c.ModuleNotLoaded != "" && loaded[c.ModuleNotLoaded] {
			continue
		}
		if c.ModuleLoaded != "" && !loaded[c.ModuleLoaded] {
			continue
		}
		if c.HasMissingMaster != nil && *c.HasMissingMaster != (len(missing) > 0) {
			continue
		}
		if c.EslCountGte != nil && eslCount < *c.EslCountGte {
			continue
		}
		if !allHold(r.mods, ctx.ModuleVersions) {
			continue
		}
		out = append(out, model.RuleMatch{
			ID:              r.id,
			Kind:            model.RulePlugin,
			Cause:           r.cause,
			Tier:            r.tier,
			Recommendations: r.recs,
		})
	}
	return out
}

func allHold(cs []moduleConstraint, versions map[string]string) bool {
	for _, c := range cs {
		if !c.holds(versions) {
			return false
		}
	}
	return true
}

// MissingMasters lists masters required by active plugins that are not active
// themselves, ignoring masters the runtime loads implicitly. Order follows the
// plugin list; duplicates are reported once.
func MissingMasters(scan *model.PluginScan) []string {
	if scan == nil {
		return nil
	}
	active := make(map[string]bool, len(scan.Plugins))
	for _, p := range scan.Plugins {
		if p.IsActive && p.Filename != "" {
			active[strings.ToLower(p.Filename)] = true
		}
	}

	seen := make(map[string]bool)
	var missing []string
	for _, p := range scan.Plugins {
		if !p.IsActive {
			continue
		}
		for _, m := range p.Masters {
			lower := strings.ToLower(m)
			if m == "" || active[lower] || implicitMasters[lower] || seen[lower] {
				continue
			}
			seen[lower] = true
			missing = append(missing, m)
		}
	}
	return missing
}

// AnyHeaderVersionAtLeast reports whether some plugin header is >= threshold.
func AnyHeaderVersionAtLeast(scan *model.PluginScan, threshold float64) bool {
	for _, p := range scan.Plugins {
		if p.HeaderVersion+headerVersionEpsilon >= threshold {
			return true
		}
	}
	return false
}

// CountESL counts light plugins in the scan.
func CountESL(scan *model.PluginScan) int {
	n := 0
	for _, p := range scan.Plugins {
		if p.IsESL {
			n++
		}
	}
	return n
}
