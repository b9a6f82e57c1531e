package engine

import "github.com/ftahirops/xtriage/model"

// RecaptureInput is what the full-dump recapture decision looks at.
type RecaptureInput struct {
	Enabled          bool
	AutoAnalyze      bool
	UnknownFault     bool
	UnknownStreak    uint32
	UnknownThreshold uint32
	DumpMode         model.DumpMode
}

// RecaptureDecision is the outcome plus the threshold actually applied.
type RecaptureDecision struct {
	Recapture bool   `json:"recapture"`
	Threshold uint32 `json:"threshold"`
}

// DecideRecapture asks for a full-memory recapture when a bucket keeps
// producing crashes whose fault module cannot be resolved. A threshold of
// zero is treated as one; a capture that is already full never recaptures.
func DecideRecapture(in RecaptureInput) RecaptureDecision {
	d := RecaptureDecision{Threshold: max(1, in.UnknownThreshold)}
	d.Recapture = in.Enabled &&
		in.AutoAnalyze &&
		in.UnknownFault &&
		in.UnknownStreak >= d.Threshold &&
		in.DumpMode != model.DumpModeFull
	return d
}

// ShouldRunHeadless decides whether to analyze without the viewer. When the
// viewer opens right away it runs the analysis itself, unless the result is
// needed internally (recapture bookkeeping).
func ShouldRunHeadless(autoAnalyze, viewerWillOpenNow, analysisRequired bool) bool {
	if !autoAnalyze {
		return false
	}
	if analysisRequired {
		return true
	}
	return !viewerWillOpenNow
}
