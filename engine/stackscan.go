package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/ftahirops/xtriage/model"
)

// maxScanBytes is how far above the stack pointer the scan looks.
const maxScanBytes = 96 * 1024

// StackScan scores modules by pointer-sized values on the raw stack that fall
// inside a module image. It needs no unwind data, so it still works when the
// stack walk fails, at the cost of counting stale return addresses too.
type StackScan struct{}

func (StackScan) sealed() {}

// Source implements Scorer.
func (StackScan) Source() model.ScoreSource { return model.SourceStackScan }

// slotWeight favours slots closest to the stack pointer.
func slotWeight(slot int) uint32 {
	switch {
	case slot < 4:
		return 8
	case slot < 16:
		return 4
	case slot < 64:
		return 2
	}
	return 1
}

func stackScanTier(top, second uint32, _ int) model.ConfidenceTier {
	switch {
	case top >= 256 || (top >= 96 && top >= second*2):
		return model.TierHigh
	case top >= 40:
		return model.TierMedium
	}
	return model.TierLow
}

var stackScanPolicy = rankPolicy{
	source:        model.SourceStackScan,
	promoteMargin: 8,
	alwaysYield:   map[string]bool{"crashloggersse.dll": true},
	tier:          stackScanTier,
	reason: func(r row) model.Text {
		return model.T(
			fmt.Sprintf("Observed %d hit(s) in stack scan", r.score),
			fmt.Sprintf("스택 스캔에서 %d회 관측", r.score))
	},
	promoted: model.T(
		" (primary candidate promoted over hook framework hit owner)",
		" (훅 프레임워크 히트 소유자보다 우선 후보로 승격)"),
}

// Score implements Scorer. The scan starts at the stack pointer when it lies
// inside the captured bytes, and at the start of the buffer otherwise.
func (StackScan) Score(in ScoreInput) model.StackEvidence {
	if len(in.Modules) == 0 || len(in.StackBytes) < 8 {
		return model.StackEvidence{Source: model.SourceStackScan, Tier: model.TierLow}
	}

	start := 0
	size := uint64(len(in.StackBytes))
	if in.StackPointer >= in.StackBase && in.StackPointer < in.StackBase+size {
		start = int(in.StackPointer - in.StackBase)
	}
	end := min(len(in.StackBytes), start+maxScanBytes)

	rows := make(map[int]*row)
	for off := start; off+8 <= end; off += 8 {
		val := binary.LittleEndian.Uint64(in.StackBytes[off : off+8])
		idx, ok := FindModule(in.Modules, val)
		if !ok {
			continue
		}
		if m := in.Modules[idx]; m.IsSystem || m.IsGameExe {
			continue
		}
		slot := (off - start) / 8
		accumulate(rows, in.Modules, idx, slotWeight(slot), slot)
	}
	return rank(flatten(rows), stackScanPolicy)
}
