package engine

import (
	"strings"

	"github.com/ftahirops/xtriage/model"
)

// SynthInput is everything the synthesizer merges into one diagnosis.
type SynthInput struct {
	Incident *model.Incident
	Fault    model.FaultSite
	// Evidence is the selected (and corroborated) candidate list.
	Evidence  model.StackEvidence
	Frames    []string
	BucketKey string
	Verdict   model.FilterVerdict

	Signature      *model.SignatureMatch
	Rules          []model.RuleMatch
	Graphics       model.GraphicsEnvironment
	MissingMasters []string
	ResolvedFunc   string

	Correlation *model.HistoryCorrelation
	ModuleStats []model.ModuleStats
	Guide       *model.Guide

	Hooks *ModuleClassifier
}

// Synthesize merges every source into one diagnosis. A matched signature
// leads the summary and its recommendations come first; otherwise the top
// candidate and any firing rules carry the verdict; with neither, the result
// is an unknown, low-confidence diagnosis with generic steps. The result is
// never nil.
func Synthesize(in SynthInput) *model.Diagnosis {
	inc := in.Incident
	if inc == nil {
		inc = &model.Incident{}
	}
	ev := sanitizeCandidates(in.Evidence)
	c := reportContext{in: inc, fault: in.Fault, ev: ev, hooks: in.Hooks}

	summary, tier := summarize(c)
	if in.Signature != nil {
		summary = signaturePrefix(in.Signature).Append(summary)
	}

	d := &model.Diagnosis{
		DumpFile:         inc.DumpFile,
		BucketKey:        in.BucketKey,
		Verdict:          in.Verdict,
		Summary:          summary,
		Tier:             tier,
		DisplayTier:      displayTier(tier, ev, in.Fault, in.Correlation),
		ExceptionCode:    inc.ExceptionCode,
		Fault:            in.Fault,
		ResolvedFunc:     in.ResolvedFunc,
		SignatureMatched: in.Signature != nil,
		Signature:        in.Signature,
		Rules:            in.Rules,
		Graphics:         in.Graphics,
		MissingMasters:   in.MissingMasters,
		Source:           ev.Source,
		Candidates:       ev.Candidates,
		Frames:           in.Frames,
		ModuleStats:      in.ModuleStats,
		Guide:            in.Guide,
	}
	if d.Candidates == nil {
		d.Candidates = []model.Candidate{}
	}
	if hc := in.Correlation; hc != nil && hc.Count > 1 {
		d.HistoryCorrelation = hc
	}

	d.Evidence = buildEvidence(c, evidenceInput{
		signature:      in.Signature,
		rules:          in.Rules,
		missingMasters: in.MissingMasters,
		frames:         in.Frames,
		resolvedFunc:   in.ResolvedFunc,
		moduleStats:    in.ModuleStats,
		correlation:    d.HistoryCorrelation,
	})

	var steps []model.Text
	if in.Signature != nil {
		steps = append(steps, in.Signature.Recommendations...)
	}
	for _, r := range in.Rules {
		steps = append(steps, r.Recommendations...)
	}
	if top, ok := ev.Top(); ok && !in.Fault.IsSystem && IsSystemModule(top.Module, top.ModulePath) {
		steps = append(steps, stepSystemDLL)
	}
	d.Steps = append(steps, recommend(c)...)
	return d
}

// sanitizeCandidates drops mod names inferred for system modules: a path
// under a mod folder does not make an OS binary third-party code.
func sanitizeCandidates(ev model.StackEvidence) model.StackEvidence {
	if len(ev.Candidates) == 0 {
		return ev
	}
	out := ev
	out.Candidates = make([]model.Candidate, len(ev.Candidates))
	copy(out.Candidates, ev.Candidates)
	for i := range out.Candidates {
		cd := &out.Candidates[i]
		if IsSystemModule(cd.Module, cd.ModulePath) || IsGameExe(cd.Module) {
			cd.InferredModName = ""
		}
	}
	return out
}

// displayTier raises the shown confidence one step when the same bucket was
// seen before and its history names the current suspect. The stack-derived
// tier itself is left alone.
func displayTier(tier model.ConfidenceTier, ev model.StackEvidence, fault model.FaultSite, hc *model.HistoryCorrelation) model.ConfidenceTier {
	if hc == nil || hc.Count <= 1 {
		return tier
	}
	suspect := fault.Module
	if top, ok := ev.Top(); ok {
		suspect = top.Module
	}
	if suspect == "" {
		return tier
	}
	for _, m := range hc.Modules {
		if strings.EqualFold(m, suspect) {
			return tier.Upgrade()
		}
	}
	return tier
}
