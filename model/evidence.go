package model

import "strings"

// ConfidenceTier is an ordered qualitative grade. TierUnknown sorts below Low and
// is only used for knowledge-base entries that declare no confidence.
type ConfidenceTier uint8

const (
	TierUnknown ConfidenceTier = iota
	TierLow
	TierMedium
	TierHigh
)

// ParseTier maps "high"/"medium"/"low" (any case) to a tier.
func ParseTier(s string) ConfidenceTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return TierHigh
	case "medium":
		return TierMedium
	case "low":
		return TierLow
	}
	return TierUnknown
}

func (c ConfidenceTier) String() string {
	switch c {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	}
	return "unknown"
}

// MarshalText renders the tier for JSON/YAML output.
func (c ConfidenceTier) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a tier from JSON/YAML input.
func (c *ConfidenceTier) UnmarshalText(b []byte) error {
	*c = ParseTier(string(b))
	return nil
}

// Downgrade lowers the tier by one step; Low and Unknown stay put.
func (c ConfidenceTier) Downgrade() ConfidenceTier {
	switch c {
	case TierHigh:
		return TierMedium
	case TierMedium:
		return TierLow
	}
	return c
}

// Upgrade raises the tier by one step, up to High. Unknown becomes Low.
func (c ConfidenceTier) Upgrade() ConfidenceTier {
	if c >= TierHigh {
		return TierHigh
	}
	return c + 1
}

// Label returns the localized label.
func (c ConfidenceTier) Label(lang Language) string {
	return tierLabels[c].In(lang)
}

var tierLabels = map[ConfidenceTier]Text{
	TierHigh:    T("High", "높음"),
	TierMedium:  T("Medium", "중간"),
	TierLow:     T("Low", "낮음"),
	TierUnknown: T("Unknown", "(알 수 없음)"),
}

// Module is one entry of the loaded-module list at capture time.
type Module struct {
	Filename        string `json:"filename"`
	Path            string `json:"path,omitempty"`
	Base            uint64 `json:"base"`
	Size            uint64 `json:"size"`
	Version         string `json:"version,omitempty"`
	InferredModName string `json:"inferred_mod_name,omitempty"`
	IsSystem        bool   `json:"is_system,omitempty"`
	IsGameExe       bool   `json:"is_game_exe,omitempty"`
	IsHookFramework bool   `json:"is_hook_framework,omitempty"`
}

// Contains reports whether addr falls inside the module image.
func (m Module) Contains(addr uint64) bool {
	return addr >= m.Base && addr < m.Base+m.Size
}

// ScoreSource identifies which scorer produced a candidate list.
type ScoreSource string

const (
	SourceStackWalk ScoreSource = "stackwalk"
	SourceStackScan ScoreSource = "stackscan"
)

// Candidate is one module implicated as a possible fault site.
type Candidate struct {
	Module          string         `json:"module"`
	ModulePath      string         `json:"module_path,omitempty"`
	InferredModName string         `json:"inferred_mod_name,omitempty"`
	Score           uint32         `json:"score"`
	FirstDepth      int            `json:"first_depth"`
	Tier            ConfidenceTier `json:"confidence"`
	IsHookFramework bool           `json:"is_hook_framework,omitempty"`
	Promoted        bool           `json:"promoted,omitempty"`
	Corroborated    bool           `json:"corroborated,omitempty"`
	Reason          Text           `json:"reason"`
}

// DisplayName prefers "Mod Name (file.dll)" when a mod name was inferred.
func (c Candidate) DisplayName() string {
	if c.InferredModName != "" {
		return c.InferredModName + " (" + c.Module + ")"
	}
	return c.Module
}

// StackEvidence is the ordered candidate list produced by one scorer.
// It is built fresh per incident and never persisted on its own.
type StackEvidence struct {
	Source     ScoreSource    `json:"source"`
	Candidates []Candidate    `json:"candidates"`
	Tier       ConfidenceTier `json:"confidence"`
}

// Top returns the leading candidate, if any.
func (e StackEvidence) Top() (Candidate, bool) {
	if len(e.Candidates) == 0 {
		return Candidate{}, false
	}
	return e.Candidates[0], true
}

// Evidence is one auditable line in a diagnosis.
type Evidence struct {
	ID     string         `json:"id"`
	Title  Text           `json:"title"`
	Detail Text           `json:"detail"`
	Tier   ConfidenceTier `json:"confidence"`
}
