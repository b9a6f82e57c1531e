package engine

import (
	"fmt"

	"github.com/ftahirops/xtriage/model"
)

// StackWalk scores modules by the precise frames of the faulting thread.
// System modules and the game executable are never candidates.
type StackWalk struct{}

func (StackWalk) sealed() {}

// Source implements Scorer.
func (StackWalk) Source() model.ScoreSource { return model.SourceStackWalk }

// frameWeight favours frames closest to the fault.
func frameWeight(depth int) uint32 {
	switch {
	case depth == 0:
		return 16
	case depth == 1:
		return 12
	case depth == 2:
		return 8
	case depth <= 5:
		return 4
	case depth <= 10:
		return 2
	}
	return 1
}

func stackWalkTier(top, second uint32, firstDepth int) model.ConfidenceTier {
	switch {
	case firstDepth <= 2 && (top >= 24 || top >= second+12):
		return model.TierHigh
	case firstDepth <= 6 && (top >= 12 || top >= second+6):
		return model.TierMedium
	}
	return model.TierLow
}

var stackWalkPolicy = rankPolicy{
	source:        model.SourceStackWalk,
	promoteMargin: 4,
	alwaysYield: map[string]bool{
		"crashlogger.dll":         true,
		"crashloggersse.dll":      true,
		"skse64_loader.dll":       true,
		"skse64_steam_loader.dll": true,
	},
	tier: stackWalkTier,
	reason: func(r row) model.Text {
		return model.T(
			fmt.Sprintf("Callstack weight=%d, first depth=%d", r.score, r.firstDepth),
			fmt.Sprintf("콜스택 상위 프레임에서 가중치=%d, 최초 깊이=%d", r.score, r.firstDepth))
	},
	promoted: model.T(
		" (primary candidate promoted over hook framework frame owner)",
		" (훅 프레임워크 프레임 소유자보다 우선 후보로 승격)"),
}

// Score implements Scorer.
func (StackWalk) Score(in ScoreInput) model.StackEvidence {
	if len(in.Modules) == 0 || len(in.Frames) == 0 {
		return model.StackEvidence{Source: model.SourceStackWalk, Tier: model.TierLow}
	}
	rows := make(map[int]*row)
	for depth, f := range in.Frames {
		idx, ok := FindModule(in.Modules, f.Address)
		if !ok {
			continue
		}
		if m := in.Modules[idx]; m.IsSystem || m.IsGameExe {
			continue
		}
		accumulate(rows, in.Modules, idx, frameWeight(depth), depth)
	}
	return rank(flatten(rows), stackWalkPolicy)
}

// maxDisplayFrames bounds the frames shown and used for bucketing.
const maxDisplayFrames = 12

// DisplayFrames renders "module+0xoff" for the frames worth showing: starting
// up to two frames above the first non-system frame, at most maxDisplayFrames.
// Frames outside any module are skipped.
func DisplayFrames(mods []model.Module, frames []model.Frame) []string {
	first := -1
	for i, f := range frames {
		idx, ok := FindModule(mods, f.Address)
		if ok && !mods[idx].IsSystem {
			first = i
			break
		}
	}
	if first < 0 {
		first = 0
	}
	start := max(0, first-2)

	var out []string
	for _, f := range frames[start:] {
		if len(out) >= maxDisplayFrames {
			break
		}
		idx, ok := FindModule(mods, f.Address)
		if !ok {
			continue
		}
		m := mods[idx]
		out = append(out, fmt.Sprintf("%s+0x%x", m.Filename, f.Address-m.Base))
	}
	return out
}
