package engine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ftahirops/xtriage/model"
)

// maxCandidates bounds the candidate list attached to a diagnosis.
const maxCandidates = 5

// ScoreInput is the forensic material the scorers read. Modules must be
// classified and sorted by base address (see ModuleClassifier.Classify).
type ScoreInput struct {
	Modules []model.Module
	// Frames of the precise stack walk, innermost first.
	Frames []model.Frame
	// Raw stack memory beginning at StackBase.
	StackBytes   []byte
	StackBase    uint64
	StackPointer uint64
}

// Scorer produces an ordered candidate list from one kind of stack evidence.
// The set is closed: StackWalk and StackScan are the only implementations.
type Scorer interface {
	Source() model.ScoreSource
	Score(in ScoreInput) model.StackEvidence
	sealed()
}

// row is one module's accumulated weight before ranking.
type row struct {
	mod        *model.Module
	score      uint32
	firstDepth int
}

// rankPolicy is what differs between the two scorers once weights are summed.
type rankPolicy struct {
	source model.ScoreSource
	// A non-framework row within promoteMargin of a framework top is promoted.
	promoteMargin uint32
	// Framework tops that always yield to a non-framework row.
	alwaysYield map[string]bool
	tier        func(top, second uint32, firstDepth int) model.ConfidenceTier
	reason      func(r row) model.Text
	promoted    model.Text
}

// rank orders rows, applies hook-framework promotion, grades the top and
// truncates. Ordering is total: score desc, first depth asc, lower-case name asc.
func rank(rows []row, p rankPolicy) model.StackEvidence {
	ev := model.StackEvidence{Source: p.source, Tier: model.TierLow}
	if len(rows) == 0 {
		return ev
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.firstDepth != b.firstDepth {
			return a.firstDepth < b.firstDepth
		}
		return strings.ToLower(a.mod.Filename) < strings.ToLower(b.mod.Filename)
	})

	promoted := false
	if len(rows) > 1 && rows[0].mod.IsHookFramework {
		for i := 1; i < len(rows); i++ {
			if rows[i].mod.IsHookFramework {
				continue
			}
			top := strings.ToLower(rows[0].mod.Filename)
			if p.alwaysYield[top] || rows[i].score+p.promoteMargin >= rows[0].score {
				rows[0], rows[i] = rows[i], rows[0]
				promoted = true
			}
			break
		}
	}

	var second uint32
	if len(rows) > 1 {
		second = rows[1].score
	}
	tier := p.tier(rows[0].score, second, rows[0].firstDepth)
	if rows[0].mod.IsHookFramework {
		tier = tier.Downgrade()
	}
	ev.Tier = tier

	n := min(len(rows), maxCandidates)
	ev.Candidates = make([]model.Candidate, 0, n)
	for i := 0; i < n; i++ {
		r := rows[i]
		c := model.Candidate{
			Module:          r.mod.Filename,
			ModulePath:      r.mod.Path,
			InferredModName: r.mod.InferredModName,
			Score:           r.score,
			FirstDepth:      r.firstDepth,
			Tier:            model.TierMedium,
			IsHookFramework: r.mod.IsHookFramework,
			Reason:          p.reason(r),
		}
		if i == 0 {
			c.Tier = tier
			if promoted {
				c.Promoted = true
				c.Reason = c.Reason.Append(p.promoted)
			}
		}
		ev.Candidates = append(ev.Candidates, c)
	}
	return ev
}

// accumulate adds w to the row for mods[idx], tracking the shallowest depth.
func accumulate(rows map[int]*row, mods []model.Module, idx int, w uint32, depth int) {
	r, ok := rows[idx]
	if !ok {
		rows[idx] = &row{mod: &mods[idx], score: w, firstDepth: depth}
		return
	}
	r.score += w
	if depth < r.firstDepth {
		r.firstDepth = depth
	}
}

func flatten(rows map[int]*row) []row {
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out
}

// SelectEvidence prefers the stack walk and falls back to the scan when the
// walk found nothing, or when it is Low and the scan grades higher.
func SelectEvidence(walk, scan model.StackEvidence) model.StackEvidence {
	if len(walk.Candidates) == 0 {
		return scan
	}
	if walk.Tier == model.TierLow && len(scan.Candidates) > 0 && scan.Tier > walk.Tier {
		return scan
	}
	return walk
}

// crashLoggerBonus weights a module by its position in the crash logger's list.
func crashLoggerBonus(rank int) uint32 {
	switch {
	case rank == 0:
		return 18
	case rank == 1:
		return 14
	case rank == 2:
		return 10
	case rank <= 4:
		return 8
	}
	return 6
}

// Corroborate re-ranks candidates with an external crash logger's callstack
// module list (most relevant first) and its C++ exception module, if any.
// A non-framework top that the logger also names is raised: to High when the
// logger ranks it first or second or names it as the C++ throw site, and from
// Low to Medium otherwise.
func Corroborate(ev model.StackEvidence, loggerModules []string, cppModule string, hooks *ModuleClassifier) model.StackEvidence {
	if len(ev.Candidates) == 0 || len(loggerModules) == 0 {
		return ev
	}
	rankOf := make(map[string]int, len(loggerModules))
	for i, m := range loggerModules {
		key := strings.ToLower(m)
		if key == "" {
			continue
		}
		if _, ok := rankOf[key]; !ok {
			rankOf[key] = i
		}
	}
	if len(rankOf) == 0 {
		return ev
	}
	cpp := strings.ToLower(cppModule)

	type ranked struct {
		c         model.Candidate
		bonus     uint32
		effective uint32
	}
	rows := make([]ranked, 0, len(ev.Candidates))
	for _, c := range ev.Candidates {
		r := ranked{c: c, effective: c.Score}
		key := strings.ToLower(c.Module)
		if lr, ok := rankOf[key]; ok {
			matchedCpp := cpp != "" && cpp == key
			r.bonus = crashLoggerBonus(lr)
			if matchedCpp {
				r.bonus += 10
			}
			r.effective += r.bonus
			r.c.Corroborated = true
			r.c.Reason = r.c.Reason.Append(model.Text{
				EN: " (Crash Logger corroboration bonus=+" + itoa(r.bonus) + ", rank=" + itoa(uint32(lr+1)) + ")",
				KO: " (Crash Logger 교차검증 보정=+" + itoa(r.bonus) + ", 순위=" + itoa(uint32(lr+1)) + ")",
			})
			if matchedCpp {
				r.c.Reason = r.c.Reason.Append(model.T(
					" (Crash Logger C++ exception module match)",
					" (Crash Logger C++ 예외 모듈 일치)"))
			}
		}
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.effective != b.effective {
			return a.effective > b.effective
		}
		if a.bonus != b.bonus {
			return a.bonus > b.bonus
		}
		return a.c.Score > b.c.Score
	})

	out := model.StackEvidence{Source: ev.Source, Tier: ev.Tier}
	out.Candidates = make([]model.Candidate, 0, len(rows))
	for _, r := range rows {
		out.Candidates = append(out.Candidates, r.c)
	}

	top := &out.Candidates[0]
	key := strings.ToLower(top.Module)
	if lr, ok := rankOf[key]; ok && !hooks.IsHookFramework(top.Module) {
		switch {
		case lr <= 1 || (cpp != "" && key == cpp):
			top.Tier = model.TierHigh
		case top.Tier == model.TierLow:
			top.Tier = model.TierMedium
		}
	}
	out.Tier = top.Tier
	return out
}

func itoa(v uint32) string { return strconv.FormatUint(uint64(v), 10) }
