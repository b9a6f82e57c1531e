package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ftahirops/xtriage/engine"
	"github.com/ftahirops/xtriage/model"
)

func sampleDiagnosis() *model.Diagnosis {
	return &model.Diagnosis{
		ID:            "inc-1",
		BucketKey:     "CTD-0123abcd",
		Summary:       model.T("Likely cause: BadMod.dll", "유력 원인: BadMod.dll"),
		Tier:          model.TierMedium,
		DisplayTier:   model.TierHigh,
		ExceptionCode: engine.StatusAccessViolation,
		Fault:         model.FaultSite{Module: "BadMod.dll", Offset: 0x1234, InferredModName: "Bad Mod"},
		ResolvedFunc:  "",
		Signature:     &model.SignatureMatch{ID: "SIG-1", Cause: model.T("Known bad hook", "알려진 훅 문제"), Tier: model.TierHigh},
		Rules:         []model.RuleMatch{{ID: "R1", Kind: model.RulePlugin, Cause: model.T("Old plugin", "오래된 플러그인"), Tier: model.TierLow}},
		Graphics:      model.GraphicsEnvironment{Groups: []string{"enb"}},
		Source:        model.SourceStackWalk,
		Candidates: []model.Candidate{
			{Module: "BadMod.dll", InferredModName: "Bad Mod", Score: 28, Tier: model.TierMedium, Promoted: true},
			{Module: "Other.dll", Score: 8, FirstDepth: 2, Tier: model.TierMedium},
		},
		HistoryCorrelation: &model.HistoryCorrelation{
			BucketKey: "CTD-0123abcd", Count: 3,
			FirstSeen: time.Now().Add(-48 * time.Hour), LastSeen: time.Now().Add(-time.Hour),
			Modules: []string{"BadMod.dll"},
		},
		Evidence: []model.Evidence{{ID: engine.EvFaultDLL, Title: model.T("Fault inside a mod DLL", "모드 DLL 내부 오류"), Tier: model.TierHigh}},
		Steps:    []model.Text{model.T("Update or disable Bad Mod.", "Bad Mod를 업데이트하거나 비활성화하세요.")},
		Guide:    &model.Guide{ID: "g", Title: model.T("Access violation checklist", "접근 위반 점검"), Steps: []model.Text{model.T("Verify game files", "게임 파일 확인")}},
	}
}

func TestRenderReport(t *testing.T) {
	d := sampleDiagnosis()

	tests := []struct {
		name string
		lang model.Language
		want []string
	}{
		{"english", model.English, []string{
			"Likely cause: BadMod.dll", "BadMod.dll+0x1234", "access violation", "Bad Mod (BadMod.dll)",
			"promoted", "SIG-1", "plugin:R1", "enb", "3x", "Fault inside a mod DLL", "1. Update or disable Bad Mod.",
			"Access violation checklist", "shown as",
		}},
		{"korean", model.Korean, []string{"유력 원인", "알려진 훅 문제", "게임 파일 확인", "높음"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderReport(d, tt.lang, 120)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("report missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestRenderReportMinimal(t *testing.T) {
	if RenderReport(nil, model.English, 80) != "" {
		t.Error("nil diagnosis rendered output")
	}
	out := RenderReport(&model.Diagnosis{Summary: model.T("nothing", "없음")}, model.English, 80)
	if !strings.Contains(out, "unresolved") || strings.Contains(out, "Suspects") {
		t.Errorf("unexpected minimal report:\n%s", out)
	}
}

func TestRenderHistory(t *testing.T) {
	stats := []model.ModuleStats{{Module: "a.dll", AsTopSuspect: 2, TotalAppearances: 3, TotalCrashes: 5}}
	bucket := &model.BucketStats{BucketKey: "CTD-x", Count: 1200, FirstSeen: time.Now().Add(-time.Hour), LastSeen: time.Now()}
	out := RenderHistory(stats, bucket, model.English, 80)
	for _, w := range []string{"a.dll", "CTD-x", "1,200x", "ago"} {
		if !strings.Contains(out, w) {
			t.Errorf("history missing %q:\n%s", w, out)
		}
	}
	if out := RenderHistory(nil, nil, model.English, 80); !strings.Contains(out, "(empty)") {
		t.Errorf("empty history:\n%s", out)
	}
}

func TestMonitorModel(t *testing.T) {
	var m tea.Model = NewMonitorModel(model.English)
	v := model.KeepDump
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = m.Update(statusMsg(engine.MonitorStatus{
		Ticks:      7,
		HangActive: true,
		Detection:  model.HangDetection{IsHang: true, ThresholdSec: 10, SecondsSinceHeartbeat: 12.5},
		Crash:      &model.CrashEventInfo{ExceptionCode: engine.StatusAccessViolation, ExceptionAddr: 0xdead},
		Verdict:    &v,
		Events:     []model.MonitorEvent{{Kind: model.EventHangCapture, Time: time.Now()}},
	}))

	out := m.View()
	for _, w := range []string{"HANG", "12.5s / 10s", "access violation at 0xDEAD", "keep_dump", "hang_capture"} {
		if !strings.Contains(out, w) {
			t.Errorf("view missing %q:\n%s", w, out)
		}
	}

	m, _ = m.Update(doneMsg{})
	if out := m.View(); !strings.Contains(out, "process exited") {
		t.Errorf("view after done:\n%s", out)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
