package kb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ftahirops/xtriage/model"
)

type graphicsDoc struct {
	DetectionModules map[string][]string `json:"detection_modules"`
	Rules            []graphicsRuleEntry `json:"rules"`
}

type graphicsRuleEntry struct {
	ID     string `json:"id"`
	Detect struct {
		ModulesAny     []string `json:"modules_any"`
		ModulesAll     []string `json:"modules_all"`
		FaultModuleAny []string `json:"fault_module_any"`
	} `json:"detect"`
	Diagnosis diagnosis `json:"diagnosis"`
}

type detectionGroup struct {
	name string
	dlls []string
}

type graphicsRule struct {
	id             string
	modulesAny     []string
	modulesAll     []string
	faultModuleAny []string

	cause model.Text
	tier  model.ConfidenceTier
	recs  []model.Text
}

// GraphicsRules detects graphics injectors (ENB, ReShade, DXVK, overlays) and
// the crash patterns they are known to cause.
type GraphicsRules struct {
	groups []detectionGroup
	rules  []graphicsRule
}

// Len returns the number of loaded rules; zero for a nil table.
func (g *GraphicsRules) Len() int {
	if g == nil {
		return 0
	}
	return len(g.rules)
}

// LoadGraphicsRules reads a graphics-injection rule database.
func LoadGraphicsRules(path string) (*GraphicsRules, error) {
	var doc graphicsDoc
	if err := loadDocument(path, &doc); err != nil {
		return nil, err
	}

	out := &GraphicsRules{}
	names := make([]string, 0, len(doc.DetectionModules))
	for name := range doc.DetectionModules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dlls := lowerAll(doc.DetectionModules[name])
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || len(dlls) == 0 {
			continue
		}
		out.groups = append(out.groups, detectionGroup{name: name, dlls: dlls})
	}

	for _, e := range doc.Rules {
		if e.ID == "" {
			continue
		}
		out.rules = append(out.rules, graphicsRule{
			id:             e.ID,
			modulesAny:     lowerAll(e.Detect.ModulesAny),
			modulesAll:     lowerAll(e.Detect.ModulesAll),
			faultModuleAny: lowerAll(e.Detect.FaultModuleAny),
			cause:          e.Diagnosis.cause(),
			tier:           e.Diagnosis.tier(),
			recs:           e.Diagnosis.recommendations(),
		})
	}
	if len(out.rules) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return out, nil
}

// DetectEnvironment reports which detection groups have a module loaded, and
// those modules in load order without duplicates.
func (g *GraphicsRules) DetectEnvironment(modules []string) model.GraphicsEnvironment {
	var env model.GraphicsEnvironment
	if g == nil || len(modules) == 0 {
		return env
	}
	present := lowerSet(modules)
	added := make(map[string]bool)
	for _, grp := range g.groups {
		if !hasAny(present, grp.dlls) {
			continue
		}
		env.Groups = append(env.Groups, grp.name)
		for _, m := range modules {
			lower := strings.ToLower(m)
			if added[lower] || !contains(grp.dlls, lower) {
				continue
			}
			added[lower] = true
			env.Modules = append(env.Modules, m)
		}
	}
	return env
}

// Diagnose returns every rule that fires for the loaded modules and fault module.
func (g *GraphicsRules) Diagnose(modules []string, faultModule string) []model.RuleMatch {
	if g == nil || len(modules) == 0 {
		return nil
	}
	present := lowerSet(modules)
	fault := strings.ToLower(faultModule)

	var out []model.RuleMatch
	for _, r := range g.rules {
		if len(r.modulesAny) > 0 && !hasAny(present, r.modulesAny) {
			continue
		}
		if !hasAll(present, r.modulesAll) {
			continue
		}
		if len(r.faultModuleAny) > 0 && !contains(r.faultModuleAny, fault) {
			continue
		}
		out = append(out, model.RuleMatch{
			ID:              r.id,
			Kind:            model.RuleGraphics,
			Cause:           r.cause,
			Tier:            r.tier,
			Recommendations: r.recs,
		})
	}
	return out
}

func hasAny(present map[string]bool, tokens []string) bool {
	for _, t := range tokens {
		if present[t] {
			return true
		}
	}
	return false
}

func hasAll(present map[string]bool, tokens []string) bool {
	for _, t := range tokens {
		if !present[t] {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
