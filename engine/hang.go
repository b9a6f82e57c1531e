package engine

import "github.com/ftahirops/xtriage/model"

// HangThresholds are the stall limits in seconds for each game state.
type HangThresholds struct {
	InGameSec  uint32
	InMenuSec  uint32
	LoadingSec uint32
}

// DefaultHangThresholds returns the shipped limits (10s in game, 30s in menus, 600s loading).
func DefaultHangThresholds() HangThresholds {
	return HangThresholds{InGameSec: 10, InMenuSec: 30, LoadingSec: 600}
}

// inGame picks the non-loading threshold. Menus never get a tighter limit than gameplay.
func (t HangThresholds) inGame(stateFlags uint32) uint32 {
	if stateFlags&model.StateInMenu != 0 {
		return max(t.InGameSec, t.InMenuSec)
	}
	return t.InGameSec
}

// DetectHang decides whether the heartbeat is stale enough to count as a hang.
// A zero tick frequency never reports a hang.
func DetectHang(s model.HeartbeatSample, t HangThresholds) model.HangDetection {
	var d model.HangDetection
	if s.TickFrequency == 0 {
		return d
	}

	d.IsLoading = s.IsLoading()
	if d.IsLoading {
		d.ThresholdSec = t.LoadingSec
	} else {
		d.ThresholdSec = t.inGame(s.StateFlags)
	}

	if s.NowTicks >= s.HeartbeatTicks {
		d.SecondsSinceHeartbeat = float64(s.NowTicks-s.HeartbeatTicks) / float64(s.TickFrequency)
	}
	d.IsHang = d.ThresholdSec > 0 && d.SecondsSinceHeartbeat >= float64(d.ThresholdSec)
	return d
}

// HangInput is everything one suppression evaluation looks at.
type HangInput struct {
	IsHang                    bool
	IsForeground              bool
	IsLoading                 bool
	IsWindowResponsive        bool
	SuppressWhenNotForeground bool
	NowTicks                  uint64
	HeartbeatTicks            uint64
	TickFrequency             uint64
	ForegroundGraceSec        uint32
}

// EvaluateHang is the suppression state machine. It is a pure transition:
// the returned state replaces the caller's state.
func EvaluateHang(state model.HangSuppressionState, in HangInput) (model.HangSuppressionState, model.HangDecision) {
	none := model.HangDecision{Reason: model.ReasonNone}

	if !in.IsHang {
		return model.HangSuppressionState{}, none
	}

	if in.SuppressWhenNotForeground && !in.IsForeground {
		// Frozen while alt-tabbed away: a real hang.
		if !in.IsWindowResponsive {
			return state, none
		}
		state.SuppressedHeartbeatTicks = in.HeartbeatTicks
		state.ForegroundResumeTicks = 0
		return state, model.HangDecision{Suppress: true, Reason: model.ReasonNotForeground}
	}

	if state.SuppressedHeartbeatTicks == 0 {
		return state, none
	}

	if in.HeartbeatTicks > state.SuppressedHeartbeatTicks {
		return model.HangSuppressionState{}, none
	}

	if !in.IsForeground {
		return state, none
	}

	// Fail open when the grace window cannot be measured.
	if in.ForegroundGraceSec == 0 || in.TickFrequency == 0 {
		return state, none
	}

	if state.ForegroundResumeTicks == 0 {
		state.ForegroundResumeTicks = in.NowTicks
	}

	var delta uint64
	if in.NowTicks > state.ForegroundResumeTicks {
		delta = in.NowTicks - state.ForegroundResumeTicks
	}
	if float64(delta)/float64(in.TickFrequency) < float64(in.ForegroundGraceSec) {
		return state, model.HangDecision{Suppress: true, Reason: model.ReasonForegroundGrace}
	}

	if !in.IsLoading && in.IsWindowResponsive {
		return state, model.HangDecision{Suppress: true, Reason: model.ReasonForegroundResponsive}
	}
	return state, none
}

// HangSuppressor owns the suppression state across monitor ticks.
type HangSuppressor struct {
	state model.HangSuppressionState
}

// Evaluate runs one transition and keeps the resulting state.
func (h *HangSuppressor) Evaluate(in HangInput) model.HangDecision {
	next, d := EvaluateHang(h.state, in)
	h.state = next
	return d
}

// State returns the current suppression state.
func (h *HangSuppressor) State() model.HangSuppressionState { return h.state }

// Reset clears any active suppression episode.
func (h *HangSuppressor) Reset() { h.state = model.HangSuppressionState{} }
