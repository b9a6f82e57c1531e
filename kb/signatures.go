package kb

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ftahirops/xtriage/model"
)

// nearZeroLimit is the highest exception address treated as a null dereference.
const nearZeroLimit = 0x10000

type signatureDoc struct {
	Signatures []signatureEntry `json:"signatures"`
}

type signatureEntry struct {
	ID        string         `json:"id"`
	Match     signatureMatch `json:"match"`
	Diagnosis diagnosis      `json:"diagnosis"`
}

type signatureMatch struct {
	ExcCode             string   `json:"exc_code"`
	FaultModule         string   `json:"fault_module"`
	FaultOffsetRegex    string   `json:"fault_offset_regex"`
	FaultModuleIsSystem *bool    `json:"fault_module_is_system"`
	ExcAddressNearZero  *bool    `json:"exc_address_near_zero"`
	CallstackContains   []string `json:"callstack_contains"`
}

// Signature is one compiled crash signature. Empty fields match anything.
type Signature struct {
	ID string

	excCode    uint32
	hasExcCode bool

	faultModule string
	offsetRe    *regexp.Regexp

	faultModuleIsSystem *bool
	nearZero            *bool
	callstackContains   []string

	cause model.Text
	tier  model.ConfidenceTier
	recs  []model.Text
}

// SignatureInput is what a signature predicate is evaluated against.
type SignatureInput struct {
	ExceptionCode       uint32
	ExceptionAddr       uint64
	FaultModule         string
	FaultOffset         uint64
	FaultModuleIsSystem bool
	// Module names seen in the callstack, crash-logger output and candidate list.
	CallstackModules []string
}

// Signatures is an immutable, ordered signature table.
type Signatures struct {
	entries []Signature
}

// Len returns the number of loaded signatures; zero for a nil table.
func (s *Signatures) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// LoadSignatures reads a signature database. Entries without an id, with an
// unparsable exc_code or with an invalid offset pattern are skipped.
func LoadSignatures(path string) (*Signatures, error) {
	var doc signatureDoc
	if err := loadDocument(path, &doc); err != nil {
		return nil, err
	}

	out := &Signatures{entries: make([]Signature, 0, len(doc.Signatures))}
	for _, e := range doc.Signatures {
		sig, ok := compileSignature(e)
		if ok {
			out.entries = append(out.entries, sig)
		}
	}
	if len(out.entries) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return out, nil
}

func compileSignature(e signatureEntry) (Signature, bool) {
	if e.ID == "" {
		return Signature{}, false
	}
	sig := Signature{
		ID:                  e.ID,
		faultModule:         strings.ToLower(strings.TrimSpace(e.Match.FaultModule)),
		faultModuleIsSystem: e.Match.FaultModuleIsSystem,
		nearZero:            e.Match.ExcAddressNearZero,
		callstackContains:   lowerAll(e.Match.CallstackContains),
		cause:               e.Diagnosis.cause(),
		tier:                e.Diagnosis.tier(),
		recs:                e.Diagnosis.recommendations(),
	}
	if e.Match.ExcCode != "" {
		v, err := strconv.ParseUint(strings.TrimSpace(e.Match.ExcCode), 0, 32)
		if err != nil {
			return Signature{}, false
		}
		sig.excCode, sig.hasExcCode = uint32(v), true
	}
	if e.Match.FaultOffsetRegex != "" {
		re, err := regexp.Compile("(?i)" + e.Match.FaultOffsetRegex)
		if err != nil {
			return Signature{}, false
		}
		sig.offsetRe = re
	}
	return sig, true
}

// Matches reports whether every predicate of the signature holds for in.
func (sig *Signature) Matches(in SignatureInput) bool {
	if sig.hasExcCode && sig.excCode != in.ExceptionCode {
		return false
	}
	if sig.faultModule != "" && strings.ToLower(in.FaultModule) != sig.faultModule {
		return false
	}
	if sig.offsetRe != nil && !sig.offsetRe.MatchString(strings.ToUpper(strconv.FormatUint(in.FaultOffset, 16))) {
		return false
	}
	if sig.faultModuleIsSystem != nil && *sig.faultModuleIsSystem != in.FaultModuleIsSystem {
		return false
	}
	if sig.nearZero != nil && *sig.nearZero != (in.ExceptionAddr <= nearZeroLimit) {
		return false
	}
	for _, token := range sig.callstackContains {
		if !anyContains(in.CallstackModules, token) {
			return false
		}
	}
	return true
}

// Match returns the first signature whose predicate holds. A nil table
// (no database, or a rejected one) never matches.
func (s *Signatures) Match(in SignatureInput) (*model.SignatureMatch, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.entries {
		sig := &s.entries[i]
		if !sig.Matches(in) {
			continue
		}
		return &model.SignatureMatch{
			ID:              sig.ID,
			Cause:           sig.cause,
			Tier:            sig.tier,
			Recommendations: sig.recs,
		}, true
	}
	return nil, false
}

func anyContains(haystacks []string, lowerNeedle string) bool {
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), lowerNeedle) {
			return true
		}
	}
	return false
}
