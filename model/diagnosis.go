package model

import "time"

// SignatureMatch is the first knowledge-base signature whose predicate held.
type SignatureMatch struct {
	ID              string         `json:"id"`
	Cause           Text           `json:"cause"`
	Tier            ConfidenceTier `json:"confidence"`
	Recommendations []Text         `json:"recommendations,omitempty"`
}

// RuleKind distinguishes the rule engines.
type RuleKind string

const (
	RulePlugin   RuleKind = "plugin"
	RuleGraphics RuleKind = "graphics"
)

// RuleMatch is one plugin-compatibility or graphics-injection rule that fired.
type RuleMatch struct {
	ID              string         `json:"id"`
	Kind            RuleKind       `json:"kind"`
	Cause           Text           `json:"cause"`
	Tier            ConfidenceTier `json:"confidence"`
	Recommendations []Text         `json:"recommendations,omitempty"`
}

// GraphicsEnvironment lists the injector groups found among loaded modules.
type GraphicsEnvironment struct {
	Groups  []string `json:"groups,omitempty"`
	Modules []string `json:"modules,omitempty"`
}

// Has reports whether the named detection group (enb, reshade, dxvk, ...) matched.
func (g GraphicsEnvironment) Has(group string) bool {
	for _, n := range g.Groups {
		if n == group {
			return true
		}
	}
	return false
}

// Guide is a troubleshooting checklist selected by exception/signature/state.
type Guide struct {
	ID    string `json:"id"`
	Title Text   `json:"title"`
	Steps []Text `json:"steps"`
}

// HistoryCorrelation is reported only when the current bucket was seen before.
type HistoryCorrelation struct {
	BucketKey string    `json:"bucket_key"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Modules   []string  `json:"associated_modules,omitempty"`
}

// Diagnosis is the synthesized, immutable result of one analysis pass.
// Tier is computed from stack evidence only; DisplayTier may be raised by
// corroborating history and is shown next to it, never merged into it.
type Diagnosis struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	DumpFile  string        `json:"dump_file,omitempty"`
	BucketKey string        `json:"bucket_key"`
	Verdict   FilterVerdict `json:"verdict"`

	Summary     Text           `json:"summary"`
	Tier        ConfidenceTier `json:"confidence"`
	DisplayTier ConfidenceTier `json:"display_confidence"`

	ExceptionCode uint32    `json:"exception_code"`
	Fault         FaultSite `json:"fault"`
	ResolvedFunc  string    `json:"resolved_function,omitempty"`

	SignatureMatched bool                `json:"signature_matched"`
	Signature        *SignatureMatch     `json:"signature,omitempty"`
	Rules            []RuleMatch         `json:"rules,omitempty"`
	Graphics         GraphicsEnvironment `json:"graphics"`
	MissingMasters   []string            `json:"missing_masters,omitempty"`

	Source     ScoreSource `json:"candidate_source,omitempty"`
	Candidates []Candidate `json:"candidates"`
	Frames     []string    `json:"frames,omitempty"`

	HistoryCorrelation *HistoryCorrelation `json:"history_correlation,omitempty"`
	ModuleStats        []ModuleStats       `json:"module_stats,omitempty"`

	Evidence []Evidence `json:"evidence"`
	Steps    []Text     `json:"troubleshooting_steps"`
	Guide    *Guide     `json:"guide,omitempty"`
}

// TopCandidate returns the leading candidate, if any.
func (d *Diagnosis) TopCandidate() (Candidate, bool) {
	if len(d.Candidates) == 0 {
		return Candidate{}, false
	}
	return d.Candidates[0], true
}

// RuleIDs lists the ids of every rule that fired.
func (d *Diagnosis) RuleIDs() []string {
	ids := make([]string, 0, len(d.Rules))
	for _, r := range d.Rules {
		ids = append(ids, r.ID)
	}
	return ids
}
