package kb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ftahirops/xtriage/model"
)

type guidesDoc struct {
	Guides []guideEntry `json:"guides"`
}

type guideEntry struct {
	ID    string `json:"id"`
	Match struct {
		ExcCode            string `json:"exc_code"`
		SignatureID        string `json:"signature_id"`
		StateFlagsContains string `json:"state_flags_contains"`
	} `json:"match"`
	TitleEN string   `json:"title_en"`
	TitleKO string   `json:"title_ko"`
	StepsEN []string `json:"steps_en"`
	StepsKO []string `json:"steps_ko"`
}

type guide struct {
	id          string
	excCode     uint32
	hasExcCode  bool
	signatureID string
	state       string

	title model.Text
	steps []model.Text
}

// GuideInput is the incident state a guide is selected by.
type GuideInput struct {
	ExceptionCode uint32
	SignatureID   string
	IsHang        bool
	IsLoading     bool
	IsSnapshot    bool
}

// Guides is an ordered troubleshooting-guide table.
type Guides struct {
	guides []guide
}

// Len returns the number of loaded guides; zero for a nil table.
func (g *Guides) Len() int {
	if g == nil {
		return 0
	}
	return len(g.guides)
}

// LoadGuides reads a troubleshooting-guide database.
func LoadGuides(path string) (*Guides, error) {
	var doc guidesDoc
	if err := loadDocument(path, &doc); err != nil {
		return nil, err
	}

	out := &Guides{}
	for i, e := range doc.Guides {
		g := guide{
			id:          e.ID,
			signatureID: e.Match.SignatureID,
			state:       strings.ToLower(strings.TrimSpace(e.Match.StateFlagsContains)),
			title:       model.T(e.TitleEN, e.TitleKO),
		}
		if g.id == "" {
			g.id = "guide-" + strconv.Itoa(i+1)
		}
		if e.Match.ExcCode != "" {
			v, err := strconv.ParseUint(strings.TrimSpace(e.Match.ExcCode), 0, 32)
			if err != nil {
				continue
			}
			g.excCode, g.hasExcCode = uint32(v), true
		}
		g.steps = diagnosis{RecommendationsEN: e.StepsEN, RecommendationsKO: e.StepsKO}.recommendations()
		out.guides = append(out.guides, g)
	}
	if len(out.guides) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return out, nil
}

// Select returns the first guide whose match block holds.
func (g *Guides) Select(in GuideInput) (*model.Guide, bool) {
	if g == nil {
		return nil, false
	}
	for _, gd := range g.guides {
		if gd.hasExcCode && (in.ExceptionCode == 0 || gd.excCode != in.ExceptionCode) {
			continue
		}
		if gd.signatureID != "" && gd.signatureID != in.SignatureID {
			continue
		}
		switch gd.state {
		case "hang":
			if !in.IsHang {
				continue
			}
		case "loading":
			if !in.IsLoading {
				continue
			}
		case "snapshot":
			if !in.IsSnapshot {
				continue
			}
		}
		return &model.Guide{ID: gd.id, Title: gd.title, Steps: gd.steps}, true
	}
	return nil, false
}
