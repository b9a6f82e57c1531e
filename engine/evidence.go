package engine

import (
	"fmt"
	"strings"

	"github.com/ftahirops/xtriage/model"
)

// Evidence IDs. Dotted like metric names so reports can be filtered by prefix.
const (
	EvSignature      = "kb.signature"
	EvGraphicsRule   = "kb.graphics"
	EvPluginRule     = "kb.plugin"
	EvMissingMasters = "plugins.missing_masters"
	EvSnapshot       = "capture.snapshot"
	EvCrashLogger    = "crashlogger.modules"
	EvFrames         = "stack.frames"
	EvTopSuspect     = "stack.top_suspect"
	EvFaultDLL       = "fault.dll"
	EvFaultSystem    = "fault.system"
	EvFaultUnknown   = "fault.unknown"
	EvGameFunction   = "fault.function"
	EvInferredMod    = "fault.inferred_mod"
	EvLoading        = "state.loading"
	EvWaitChain      = "hang.wait_chain"
	EvHistoryModules = "history.modules"
	EvHistoryBucket  = "history.bucket"
)

// emitEvidence creates one evidence line.
func emitEvidence(id string, tier model.ConfidenceTier, title, detail model.Text) model.Evidence {
	return model.Evidence{ID: id, Title: title, Detail: detail, Tier: tier}
}

func joinList(items []string, limit int, sep string) string {
	if len(items) > limit {
		items = items[:limit]
	}
	return strings.Join(items, sep)
}

// evidenceInput is what the evidence builder reads beyond the report context.
type evidenceInput struct {
	signature      *model.SignatureMatch
	rules          []model.RuleMatch
	missingMasters []string
	frames         []string
	resolvedFunc   string
	moduleStats    []model.ModuleStats
	correlation    *model.HistoryCorrelation
}

// buildEvidence lists every auditable fact behind a diagnosis, strongest
// knowledge-base matches first.
func buildEvidence(c reportContext, in evidenceInput) []model.Evidence {
	var out []model.Evidence

	if sig := in.signature; sig != nil {
		tier := sig.Tier
		if tier == model.TierUnknown {
			tier = model.TierMedium
		}
		out = append(out, emitEvidence(EvSignature, tier,
			model.T("Known crash pattern: "+sig.ID, "알려진 크래시 패턴: "+sig.ID), sig.Cause))
	}

	for _, r := range in.rules {
		tier := r.Tier
		if tier == model.TierUnknown {
			tier = model.TierMedium
		}
		switch r.Kind {
		case model.RuleGraphics:
			out = append(out, emitEvidence(EvGraphicsRule, tier,
				model.T("Graphics injection crash: "+r.ID, "그래픽 인젝션 크래시: "+r.ID), r.Cause))
		default:
			out = append(out, emitEvidence(EvPluginRule, tier,
				model.T("Plugin diagnostics: "+r.ID, "플러그인 진단: "+r.ID), r.Cause))
		}
	}

	if len(in.missingMasters) > 0 {
		list := joinList(in.missingMasters, 4, ", ")
		out = append(out, emitEvidence(EvMissingMasters, model.TierHigh,
			model.T("Missing plugin masters detected", "누락된 마스터 플러그인 감지"),
			model.T(list, list)))
	}

	if c.isSnapshot() {
		detail := model.T(
			"Captured without crash/hang signals. Treat it as a snapshot, not a root-cause dump.",
			"크래시/행 신호 없이 캡처된 덤프입니다. 원인 확정용이 아니라 '상태 확인용'입니다.")
		if c.isManual() {
			detail = model.T(
				"Likely a manual snapshot. This alone does not prove there is a problem. (For state inspection)",
				"수동 캡처로 추정됩니다. 이 결과만으로 '문제가 있다'고 단정할 수 없습니다. (상태 확인용)")
		}
		out = append(out, emitEvidence(EvSnapshot, model.TierHigh,
			model.T("This dump looks like a state snapshot (not a crash/hang dump)",
				"이 덤프는 크래시 덤프가 아니라 '상태 스냅샷'으로 보임"),
			detail))
	}

	if mods := c.in.CrashLoggerModules; len(mods) > 0 {
		list := joinList(mods, 4, ", ")
		out = append(out, emitEvidence(EvCrashLogger, model.TierMedium,
			model.T("Crash Logger: top callstack modules", "Crash Logger 콜스택 상위 모듈"),
			model.T(list, list)))
	}

	if len(in.frames) > 0 {
		tier := model.TierLow
		if top, ok := c.ev.Top(); ok {
			tier = top.Tier
		}
		d := fmt.Sprintf("tid=%d: %s", c.in.FaultingTID, joinList(in.frames, 4, " | "))
		out = append(out, emitEvidence(EvFrames, tier,
			model.T("Callstack (primary thread): top frames", "콜스택(대표 스레드) 상위 프레임"),
			model.T(d, d)))
	}

	if len(c.ev.Candidates) > 0 {
		out = append(out, topSuspectEvidence(c))
	}

	switch {
	case c.faultInMod():
		p := c.fault.PlusOffset()
		out = append(out, emitEvidence(EvFaultDLL, model.TierHigh,
			model.T("Exception occurred inside a specific DLL", "크래시가 특정 DLL 내부에서 발생"),
			model.T(
				"The exception address is within "+c.fault.Module+". (Module+Offset: "+p+")",
				"예외 주소가 "+c.fault.Module+" 범위에 포함됩니다. (Module+Offset: "+p+")")))
	case c.hasModule() && c.fault.IsSystem:
		p := c.fault.PlusOffset()
		out = append(out, emitEvidence(EvFaultSystem, model.TierLow,
			model.T("Exception reported in a Windows system DLL", "크래시가 Windows 시스템 DLL에서 보고됨"),
			model.T(
				"The exception address is reported in "+c.fault.Module+". In this case the real culprit is often another mod/DLL. (Module+Offset: "+p+")",
				"예외 주소가 "+c.fault.Module+" 에서 보고됩니다. 이 경우 실제 원인은 다른 DLL/모드일 수 있습니다. (Module+Offset: "+p+")")))
	case !c.hasModule():
		out = append(out, emitEvidence(EvFaultUnknown, model.TierLow,
			model.T("Could not determine the fault module", "fault module을 특정하지 못함"),
			model.T("The dump may lack module list/exception data.", "덤프에 모듈 목록/예외 정보가 부족할 수 있습니다.")))
	}

	if c.fault.IsGameExe && in.resolvedFunc != "" {
		out = append(out, emitEvidence(EvGameFunction, model.TierMedium,
			model.T("Game function identified", "게임 함수 식별"),
			model.T("Crash occurred in or near: "+in.resolvedFunc, "크래시 발생 위치(또는 근처): "+in.resolvedFunc)))
	}

	if name := c.fault.InferredModName; name != "" {
		out = append(out, emitEvidence(EvInferredMod, model.TierMedium,
			model.T("Inferred mod name from mod-manager path", "모드 관리자 폴더 경로에서 모드명 추정"),
			model.T(
				`Detected a \mods\<modname>\ path pattern; inferred '`+name+"'.",
				`모듈 경로에 \mods\<모드명>\ 패턴이 있어 '`+name+"' 로 추정했습니다.")))
	}

	if c.isLoading() {
		out = append(out, emitEvidence(EvLoading, model.TierMedium,
			model.T("Capture appears to have happened during loading", "크래시 당시 로딩 상태로 추정"),
			model.T(
				"The Loading flag is set in state_flags. (Likely mesh/texture/script init stage)",
				"state_flags에 Loading 플래그가 설정되어 있습니다. (메쉬/텍스처/스크립트 초기화 단계일 수 있음)")))
	}

	if h := c.in.Hang; h != nil {
		d := fmt.Sprintf("capture=%s, cycleThreads=%d, heartbeatAge=%.1fs (threshold=%ds, loading=%t)",
			c.in.Kind, h.Cycles, h.SecondsSinceHeartbeat, h.ThresholdSec, c.isLoading())
		tier := model.TierMedium
		if c.isSnapshot() && c.isManual() && h.Cycles == 0 {
			tier = model.TierLow
		}
		out = append(out, emitEvidence(EvWaitChain, tier,
			model.T("Wait chain summary", "대기 체인 요약"), model.T(d, d)))
	}

	if len(in.moduleStats) > 0 {
		var en, ko []string
		for _, ms := range in.moduleStats[:min(len(in.moduleStats), 3)] {
			if ms.Module == "" {
				continue
			}
			en = append(en, fmt.Sprintf("%s: %d/%d crashes, top %dx", ms.Module, ms.TotalAppearances, ms.TotalCrashes, ms.AsTopSuspect))
			ko = append(ko, fmt.Sprintf("%s: %d회 중 %d회 등장, 1위 %d회", ms.Module, ms.TotalCrashes, ms.TotalAppearances, ms.AsTopSuspect))
		}
		if len(en) > 0 {
			out = append(out, emitEvidence(EvHistoryModules, model.TierMedium,
				model.T("Crash history pattern", "크래시 이력 패턴"),
				model.T(strings.Join(en, "\n"), strings.Join(ko, "\n"))))
		}
	}

	if hc := in.correlation; hc != nil && hc.Count > 1 {
		first := hc.FirstSeen.UTC().Format("2006-01-02T15:04:05Z")
		out = append(out, emitEvidence(EvHistoryBucket, model.TierHigh,
			model.T("Repeated crash pattern", "반복 크래시 패턴"),
			model.T(
				fmt.Sprintf("Same bucket_key matched %d times (first: %s)", hc.Count, first),
				fmt.Sprintf("동일 패턴이 %d회 발생 (최초: %s)", hc.Count, first))))
	}
	return out
}

// topSuspectEvidence lists up to three candidates. When the top one is a
// victim-like module (hook framework, system, game executable) the first
// actionable candidate is shown first.
func topSuspectEvidence(c reportContext) model.Evidence {
	cands := c.ev.Candidates
	victim := func(cd model.Candidate) bool {
		return cd.IsHookFramework || c.hooks.IsHookFramework(cd.Module) ||
			IsSystemModule(cd.Module, cd.ModulePath) || IsGameExe(cd.Module)
	}
	sel := 0
	if victim(cands[0]) {
		for i, cd := range cands {
			if !victim(cd) {
				sel = i
				break
			}
		}
	}

	names := []string{cands[sel].DisplayName()}
	for i, cd := range cands {
		if i == sel {
			continue
		}
		if len(names) >= 3 {
			break
		}
		names = append(names, cd.DisplayName())
	}

	tier := cands[sel].Tier
	if tier == model.TierUnknown {
		tier = model.TierMedium
	}
	title := model.T("Top suspect (callstack-based)", "콜스택 기반 유력 후보")
	if c.ev.Source == model.SourceStackScan {
		title = model.T("Top suspect (stack-scan-based)", "스택 스캔 기반 유력 후보")
	}
	list := strings.Join(names, ", ")
	return emitEvidence(EvTopSuspect, tier, title, model.T(list, list))
}
