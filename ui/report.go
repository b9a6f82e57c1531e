package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ftahirops/xtriage/engine"
	"github.com/ftahirops/xtriage/model"
)

var (
	hdrDiagnosis  = model.T("Diagnosis", "진단")
	hdrCandidates = model.T("Suspects", "용의 모듈")
	hdrKnowledge  = model.T("Knowledge base", "지식 베이스")
	hdrHistory    = model.T("History", "기록")
	hdrEvidence   = model.T("Evidence", "근거")
	hdrSteps      = model.T("What to try", "해볼 것")

	lblConfidence = model.T("Confidence", "신뢰도")
	lblDisplayed  = model.T("shown as", "표시")
	lblFault      = model.T("Fault", "오류 위치")
	lblException  = model.T("Exception", "예외")
	lblBucket     = model.T("Bucket", "버킷")
	lblVerdict    = model.T("Verdict", "판정")
	lblGraphics   = model.T("Graphics", "그래픽")
	lblMissing    = model.T("Missing", "누락 마스터")
	lblSeen       = model.T("Seen", "발생")
	lblUnknown    = model.T("unresolved", "확인 불가")
)

// RenderReport renders a diagnosis as boxed sections for a terminal of the
// given width.
func RenderReport(d *model.Diagnosis, lang model.Language, width int) string {
	if d == nil {
		return ""
	}
	innerW := pageInnerW(width)
	now := time.Now()

	var sb strings.Builder
	sb.WriteString(boxSection(hdrDiagnosis.In(lang)+"  "+dimStyle.Render(d.ID), headLines(d, lang), innerW))
	if lines := candidateLines(d, lang); len(lines) > 0 {
		sb.WriteString(boxSection(hdrCandidates.In(lang)+" ("+string(d.Source)+")", lines, innerW))
	}
	if lines := knowledgeLines(d, lang); len(lines) > 0 {
		sb.WriteString(boxSection(hdrKnowledge.In(lang), lines, innerW))
	}
	if lines := historyLines(d, lang, now); len(lines) > 0 {
		sb.WriteString(boxSection(hdrHistory.In(lang), lines, innerW))
	}
	if len(d.Evidence) > 0 {
		lines := make([]string, 0, len(d.Evidence))
		for _, e := range d.Evidence {
			line := tierStyle(e.Tier).Render("["+e.Tier.Label(lang)+"]") + " " + valueStyle.Render(e.Title.In(lang))
			if detail := e.Detail.In(lang); detail != "" {
				line += dimStyle.Render(" - " + detail)
			}
			lines = append(lines, line)
		}
		sb.WriteString(boxSection(hdrEvidence.In(lang), lines, innerW))
	}
	if lines := stepLines(d, lang); len(lines) > 0 {
		sb.WriteString(boxSection(hdrSteps.In(lang), lines, innerW))
	}
	return sb.String()
}

func headLines(d *model.Diagnosis, lang model.Language) []string {
	conf := tierStyle(d.Tier).Render(d.Tier.Label(lang))
	if d.DisplayTier != d.Tier {
		conf += dimStyle.Render(" ("+lblDisplayed.In(lang)+": ") + tierStyle(d.DisplayTier).Render(d.DisplayTier.Label(lang)) + dimStyle.Render(")")
	}

	fault := dimStyle.Render(lblUnknown.In(lang))
	if d.Fault.Known() {
		fault = valueStyle.Render(d.Fault.PlusOffset())
		if d.Fault.InferredModName != "" {
			fault += dimStyle.Render(" [" + d.Fault.InferredModName + "]")
		}
		if d.ResolvedFunc != "" {
			fault += " " + titleStyle.Render(d.ResolvedFunc)
		}
	}

	lines := []string{valueStyle.Render(d.Summary.In(lang)), ""}
	details := []kv{
		{lblConfidence.In(lang), conf},
		{lblFault.In(lang), fault},
	}
	if d.ExceptionCode != 0 {
		details = append(details, kv{lblException.In(lang), fmt.Sprintf("%s (0x%08X)", engine.ExceptionName(d.ExceptionCode), d.ExceptionCode)})
	}
	details = append(details,
		kv{lblBucket.In(lang), dimStyle.Render(d.BucketKey)},
		kv{lblVerdict.In(lang), verdictStyle(d.Verdict).Render(d.Verdict.String())},
	)
	return append(lines, kvLines(details)...)
}

func candidateLines(d *model.Diagnosis, lang model.Language) []string {
	lines := make([]string, 0, len(d.Candidates))
	for i, c := range d.Candidates {
		var flags []string
		if c.IsHookFramework {
			flags = append(flags, "hook")
		}
		if c.Promoted {
			flags = append(flags, "promoted")
		}
		if c.Corroborated {
			flags = append(flags, "corroborated")
		}
		line := fmt.Sprintf("%d. %s  %s  %s",
			i+1,
			styledPad(valueStyle.Render(truncate(c.DisplayName(), 40)), 40),
			styledPad(tierStyle(c.Tier).Render(c.Tier.Label(lang)), 8),
			dimStyle.Render(fmt.Sprintf("score=%d depth=%d", c.Score, c.FirstDepth)))
		if len(flags) > 0 {
			line += " " + orangeStyle.Render(strings.Join(flags, ","))
		}
		lines = append(lines, line)
		if r := c.Reason.In(lang); r != "" {
			lines = append(lines, "   "+dimStyle.Render(r))
		}
	}
	return lines
}

func knowledgeLines(d *model.Diagnosis, lang model.Language) []string {
	var lines []string
	if s := d.Signature; s != nil {
		lines = append(lines, tierStyle(s.Tier).Render("["+s.ID+"]")+" "+valueStyle.Render(s.Cause.In(lang)))
	}
	for _, r := range d.Rules {
		lines = append(lines, tierStyle(r.Tier).Render("["+string(r.Kind)+":"+r.ID+"]")+" "+valueStyle.Render(r.Cause.In(lang)))
	}
	var details []kv
	if len(d.Graphics.Groups) > 0 {
		details = append(details, kv{lblGraphics.In(lang), strings.Join(d.Graphics.Groups, ", ")})
	}
	if len(d.MissingMasters) > 0 {
		details = append(details, kv{lblMissing.In(lang), warnStyle.Render(strings.Join(d.MissingMasters, ", "))})
	}
	return append(lines, kvLines(details)...)
}

func historyLines(d *model.Diagnosis, lang model.Language, now time.Time) []string {
	var lines []string
	if h := d.HistoryCorrelation; h != nil {
		seen := fmt.Sprintf("%dx, first %s, last %s", h.Count, humanize.RelTime(h.FirstSeen, now, "ago", "from now"), humanize.RelTime(h.LastSeen, now, "ago", "from now"))
		lines = append(lines, kvLines([]kv{{lblSeen.In(lang), warnStyle.Render(seen)}})...)
		if len(h.Modules) > 0 {
			lines = append(lines, dimStyle.Render("  "+strings.Join(h.Modules, ", ")))
		}
	}
	for i, ms := range d.ModuleStats {
		if i == 3 {
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s",
			styledPad(valueStyle.Render(truncate(ms.Module, 32)), 34),
			dimStyle.Render(fmt.Sprintf("top %d / seen %d of %d", ms.AsTopSuspect, ms.TotalAppearances, ms.TotalCrashes))))
	}
	return lines
}

func stepLines(d *model.Diagnosis, lang model.Language) []string {
	var lines []string
	for i, s := range d.Steps {
		lines = append(lines, fmt.Sprintf("%s %s", titleStyle.Render(fmt.Sprintf("%d.", i+1)), s.In(lang)))
	}
	if g := d.Guide; g != nil {
		lines = append(lines, "", headerStyle.Render(g.Title.In(lang)))
		for _, s := range g.Steps {
			lines = append(lines, "  - "+s.In(lang))
		}
	}
	return lines
}

// RenderHistory renders module statistics and, when known, one bucket.
func RenderHistory(stats []model.ModuleStats, bucket *model.BucketStats, lang model.Language, width int) string {
	innerW := pageInnerW(width)
	now := time.Now()
	var sb strings.Builder

	lines := make([]string, 0, len(stats)+1)
	lines = append(lines, dimStyle.Render(fmt.Sprintf("%-34s %6s %6s %6s", "module", "top", "seen", "of")))
	for _, ms := range stats {
		lines = append(lines, fmt.Sprintf("%s %6d %6d %6d", styledPad(truncate(ms.Module, 34), 34), ms.AsTopSuspect, ms.TotalAppearances, ms.TotalCrashes))
	}
	if len(stats) == 0 {
		lines = append(lines, dimStyle.Render("(empty)"))
	}
	sb.WriteString(boxSection(hdrHistory.In(lang), lines, innerW))

	if bucket != nil {
		details := []kv{
			{lblBucket.In(lang), bucket.BucketKey},
			{lblSeen.In(lang), humanize.Comma(int64(bucket.Count)) + "x"},
		}
		if bucket.Count > 0 {
			details = append(details,
				kv{"first", humanize.RelTime(bucket.FirstSeen, now, "ago", "from now")},
				kv{"last", humanize.RelTime(bucket.LastSeen, now, "ago", "from now")},
			)
		}
		bl := kvLines(details)
		if len(bucket.Modules) > 0 {
			bl = append(bl, dimStyle.Render(strings.Join(bucket.Modules, ", ")))
		}
		sb.WriteString(boxSection(lblBucket.In(lang), bl, innerW))
	}
	return sb.String()
}
