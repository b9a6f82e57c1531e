package engine

import (
	"testing"

	"github.com/ftahirops/xtriage/model"
)

func hangIn(fg, responsive, loading bool, now, hb uint64) HangInput {
	return HangInput{
		IsHang:                    true,
		IsForeground:              fg,
		IsLoading:                 loading,
		IsWindowResponsive:        responsive,
		SuppressWhenNotForeground: true,
		NowTicks:                  now,
		HeartbeatTicks:            hb,
		TickFrequency:             100,
		ForegroundGraceSec:        5,
	}
}

func TestEvaluateHangNoHangResets(t *testing.T) {
	priors := []model.HangSuppressionState{
		{},
		{SuppressedHeartbeatTicks: 200},
		{SuppressedHeartbeatTicks: 200, ForegroundResumeTicks: 123},
	}
	for _, prior := range priors {
		in := hangIn(true, false, false, 1000, 200)
		in.IsHang = false
		next, d := EvaluateHang(prior, in)
		if d.Suppress || d.Reason != model.ReasonNone {
			t.Errorf("EvaluateHang(%+v, no hang) = %+v, want no suppress", prior, d)
		}
		if next != (model.HangSuppressionState{}) {
			t.Errorf("EvaluateHang(%+v, no hang) state = %+v, want zero", prior, next)
		}
	}
}

func TestEvaluateHangBackground(t *testing.T) {
	tests := []struct {
		name       string
		responsive bool
		want       model.HangDecision
		wantState  model.HangSuppressionState
	}{
		{
			"responsive background is an alt-tab pause",
			true,
			model.HangDecision{Suppress: true, Reason: model.ReasonNotForeground},
			model.HangSuppressionState{SuppressedHeartbeatTicks: 200},
		},
		{
			"unresponsive background is a real freeze",
			false,
			model.HangDecision{Reason: model.ReasonNone},
			model.HangSuppressionState{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, d := EvaluateHang(model.HangSuppressionState{}, hangIn(false, tt.responsive, false, 1000, 200))
			if d != tt.want {
				t.Errorf("decision = %+v, want %+v", d, tt.want)
			}
			if next != tt.wantState {
				t.Errorf("state = %+v, want %+v", next, tt.wantState)
			}
		})
	}
}

func TestEvaluateHangBackgroundClearsResumeTicks(t *testing.T) {
	prior := model.HangSuppressionState{SuppressedHeartbeatTicks: 150, ForegroundResumeTicks: 900}
	next, _ := EvaluateHang(prior, hangIn(false, true, false, 1000, 200))
	if next.ForegroundResumeTicks != 0 || next.SuppressedHeartbeatTicks != 200 {
		t.Errorf("state = %+v, want suppressed=200 resume=0", next)
	}
}

func TestEvaluateHangNoEpisode(t *testing.T) {
	next, d := EvaluateHang(model.HangSuppressionState{}, hangIn(true, true, false, 1000, 200))
	if d.Suppress {
		t.Errorf("decision = %+v, want no suppress without an episode", d)
	}
	if next != (model.HangSuppressionState{}) {
		t.Errorf("state = %+v, want zero", next)
	}
}

func TestEvaluateHangGraceWindow(t *testing.T) {
	// Resume recorded at tick 1000; freq 100 => elapsed = (now-1000)/100 seconds.
	tests := []struct {
		name       string
		now        uint64
		responsive bool
		loading    bool
		want       model.HangDecision
	}{
		{"at resume", 1000, false, false, model.HangDecision{Suppress: true, Reason: model.ReasonForegroundGrace}},
		{"3s into grace", 1300, false, false, model.HangDecision{Suppress: true, Reason: model.ReasonForegroundGrace}},
		{"just under 5s", 1499, false, false, model.HangDecision{Suppress: true, Reason: model.ReasonForegroundGrace}},
		{"exactly 5s unresponsive", 1500, false, false, model.HangDecision{Reason: model.ReasonNone}},
		{"exactly 5s responsive", 1500, true, false, model.HangDecision{Suppress: true, Reason: model.ReasonForegroundResponsive}},
		{"after grace responsive but loading", 1700, true, true, model.HangDecision{Reason: model.ReasonNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := model.HangSuppressionState{SuppressedHeartbeatTicks: 200, ForegroundResumeTicks: 1000}
			_, d := EvaluateHang(state, hangIn(true, tt.responsive, tt.loading, tt.now, 200))
			if d != tt.want {
				t.Errorf("decision at now=%d = %+v, want %+v", tt.now, d, tt.want)
			}
		})
	}
}

func TestEvaluateHangAltTabSequence(t *testing.T) {
	var h HangSuppressor

	if d := h.Evaluate(hangIn(false, true, false, 1000, 200)); d.Reason != model.ReasonNotForeground {
		t.Fatalf("background: reason = %v, want not_foreground", d.Reason)
	}
	if d := h.Evaluate(hangIn(true, false, false, 1100, 200)); d.Reason != model.ReasonForegroundGrace {
		t.Fatalf("refocus: reason = %v, want foreground_grace", d.Reason)
	}
	if got := h.State().ForegroundResumeTicks; got != 1100 {
		t.Fatalf("resume ticks = %d, want 1100", got)
	}
	if d := h.Evaluate(hangIn(true, false, false, 1400, 200)); d.Reason != model.ReasonForegroundGrace {
		t.Fatalf("3s after refocus: reason = %v, want foreground_grace", d.Reason)
	}
	if d := h.Evaluate(hangIn(true, false, false, 1700, 200)); d.Suppress {
		t.Fatalf("after grace: decision = %+v, want capture allowed", d)
	}
}

func TestEvaluateHangHeartbeatAdvanceClears(t *testing.T) {
	state := model.HangSuppressionState{SuppressedHeartbeatTicks: 200, ForegroundResumeTicks: 1100}
	for _, fg := range []bool{true, false} {
		in := hangIn(fg, false, false, 1200, 201)
		in.SuppressWhenNotForeground = false
		next, d := EvaluateHang(state, in)
		if d.Suppress {
			t.Errorf("foreground=%v: decision = %+v, want no suppress", fg, d)
		}
		if next != (model.HangSuppressionState{}) {
			t.Errorf("foreground=%v: state = %+v, want zero", fg, next)
		}
	}
}

func TestEvaluateHangStillBackgroundKeepsState(t *testing.T) {
	state := model.HangSuppressionState{SuppressedHeartbeatTicks: 200}
	in := hangIn(false, true, false, 1200, 200)
	in.SuppressWhenNotForeground = false
	next, d := EvaluateHang(state, in)
	if d.Suppress || next != state {
		t.Errorf("got (%+v, %+v), want no suppress and unchanged state", next, d)
	}
}

func TestEvaluateHangFailsOpen(t *testing.T) {
	state := model.HangSuppressionState{SuppressedHeartbeatTicks: 200}
	for _, in := range []HangInput{
		func() HangInput { i := hangIn(true, true, false, 1200, 200); i.ForegroundGraceSec = 0; return i }(),
		func() HangInput { i := hangIn(true, true, false, 1200, 200); i.TickFrequency = 0; return i }(),
	} {
		next, d := EvaluateHang(state, in)
		if d.Suppress {
			t.Errorf("grace=%d freq=%d: decision = %+v, want no suppress", in.ForegroundGraceSec, in.TickFrequency, d)
		}
		if next != state {
			t.Errorf("state changed to %+v", next)
		}
	}
}

func TestEvaluateHangIdempotent(t *testing.T) {
	in := hangIn(true, true, false, 1300, 200)
	state := model.HangSuppressionState{SuppressedHeartbeatTicks: 200, ForegroundResumeTicks: 1000}
	s1, d1 := EvaluateHang(state, in)
	s2, d2 := EvaluateHang(s1, in)
	if s1 != s2 || d1 != d2 {
		t.Errorf("second call = (%+v, %+v), first = (%+v, %+v)", s2, d2, s1, d1)
	}
}

func TestDetectHang(t *testing.T) {
	th := DefaultHangThresholds()
	tests := []struct {
		name   string
		sample model.HeartbeatSample
		want   model.HangDetection
	}{
		{
			"zero frequency",
			model.HeartbeatSample{NowTicks: 5000, HeartbeatTicks: 0},
			model.HangDetection{},
		},
		{
			"in game stale",
			model.HeartbeatSample{NowTicks: 1100, HeartbeatTicks: 100, TickFrequency: 100},
			model.HangDetection{IsHang: true, ThresholdSec: 10, SecondsSinceHeartbeat: 10},
		},
		{
			"in game fresh",
			model.HeartbeatSample{NowTicks: 1000, HeartbeatTicks: 100, TickFrequency: 100},
			model.HangDetection{ThresholdSec: 10, SecondsSinceHeartbeat: 9},
		},
		{
			"menu uses the larger threshold",
			model.HeartbeatSample{NowTicks: 2100, HeartbeatTicks: 100, TickFrequency: 100, StateFlags: model.StateInMenu},
			model.HangDetection{ThresholdSec: 30, SecondsSinceHeartbeat: 20},
		},
		{
			"loading threshold wins over menu",
			model.HeartbeatSample{NowTicks: 60100, HeartbeatTicks: 100, TickFrequency: 100, StateFlags: model.StateInMenu | model.StateLoading},
			model.HangDetection{IsHang: true, IsLoading: true, ThresholdSec: 600, SecondsSinceHeartbeat: 600},
		},
		{
			"heartbeat ahead of now",
			model.HeartbeatSample{NowTicks: 100, HeartbeatTicks: 200, TickFrequency: 100},
			model.HangDetection{ThresholdSec: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectHang(tt.sample, th); got != tt.want {
				t.Errorf("DetectHang() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
