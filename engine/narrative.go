package engine

import (
	"fmt"

	"github.com/ftahirops/xtriage/model"
)

// reportContext is the per-incident view shared by the summary, evidence and
// recommendation builders.
type reportContext struct {
	in    *model.Incident
	fault model.FaultSite
	ev    model.StackEvidence
	hooks *ModuleClassifier
}

func (c reportContext) hasException() bool { return c.in.ExceptionCode != 0 }
func (c reportContext) isHang() bool       { return c.in.IsHangLike() }
func (c reportContext) isSnapshot() bool   { return c.in.IsSnapshotLike() }
func (c reportContext) isManual() bool     { return c.in.Kind == model.CaptureManual }
func (c reportContext) isLoading() bool    { return c.in.StateFlags&model.StateLoading != 0 }
func (c reportContext) hasModule() bool    { return c.fault.Known() }

// isCrash is any capture that is neither a hang nor a snapshot.
func (c reportContext) isCrash() bool { return !c.isHang() && !c.isSnapshot() }

// faultInMod is a fault inside a third-party module.
func (c reportContext) faultInMod() bool {
	return c.hasModule() && !c.fault.IsSystem && !c.fault.IsGameExe
}

func (c reportContext) basis() model.Text {
	if c.ev.Source == model.SourceStackScan {
		return model.T("stack scan", "스택 스캔")
	}
	return model.T("callstack", "콜스택")
}

// who names the fault module, preferring "Mod (file.dll)".
func (c reportContext) who() model.Text {
	switch {
	case c.fault.InferredModName != "":
		s := c.fault.InferredModName + " (" + c.fault.Module + ")"
		return model.T(s, s)
	case c.fault.Module != "":
		return model.T(c.fault.Module, c.fault.Module)
	}
	return model.T("(unknown)", "(알 수 없음)")
}

// suspect returns the top candidate's display name and tier.
func (c reportContext) suspect() (string, model.ConfidenceTier, bool) {
	top, ok := c.ev.Top()
	if !ok || top.Module == "" {
		return "", model.TierUnknown, false
	}
	tier := top.Tier
	if tier == model.TierUnknown {
		tier = model.TierMedium
	}
	return top.DisplayName(), tier, true
}

func confSuffix(t model.ConfidenceTier) model.Text {
	return model.T(
		" (Confidence: "+t.Label(model.English)+")",
		" (신뢰도: "+t.Label(model.Korean)+")")
}

// summarize returns the one-line verdict and the tier it states. The tier is
// derived from the fault site and stack evidence only.
func summarize(c reportContext) (model.Text, model.ConfidenceTier) {
	who := c.who()
	basis := c.basis()
	suspect, suspectTier, hasSuspect := c.suspect()

	switch {
	case c.isSnapshot():
		if c.isManual() {
			return model.T(
				"Looks like a manual snapshot. This alone does not prove a problem.",
				"수동 캡처 스냅샷으로 보입니다. 이 결과만으로 '문제가 있다'고 단정할 수 없습니다.",
			).Append(confSuffix(model.TierHigh)), model.TierHigh
		}
		return model.T(
			"Looks like a snapshot dump (not a crash/hang). Useful for state inspection, not root cause.",
			"스냅샷 덤프(크래시/행 아님)로 보입니다. 원인 판정용이 아니라 '상태 확인'에 유용합니다.",
		).Append(confSuffix(model.TierHigh)), model.TierHigh

	case c.faultInMod():
		return model.T(
			"Top suspect: "+who.EN+" - the crash appears to occur inside this DLL.",
			"유력 후보: "+who.KO+" - 해당 DLL 내부에서 크래시가 발생한 것으로 보입니다.",
		).Append(confSuffix(model.TierHigh)), model.TierHigh

	case c.hasModule() && c.fault.IsSystem:
		switch {
		case hasSuspect:
			return model.T(
				"Crash is reported in a Windows system DLL, but "+basis.EN+" points to "+suspect+".",
				"크래시가 Windows 시스템 DLL에서 보고되었지만, "+basis.KO+"에서는 "+suspect+" 가 유력합니다.",
			).Append(confSuffix(suspectTier)), suspectTier
		case c.in.ExceptionCode == StatusCppException:
			return model.T(
				"Reported in a Windows system DLL with 0xE06D7363 (C++ exception). Could be normal throw/catch; confirm this was an actual CTD.",
				"0xE06D7363(C++ 예외)로 Windows 시스템 DLL에서 보고되었습니다. 정상 동작 중 throw/catch일 수도 있어 실제 CTD 여부 확인이 필요합니다.",
			).Append(confSuffix(model.TierLow)), model.TierLow
		}
		return model.T(
			"Crash is reported in a Windows system DLL. The real culprit may be another mod/DLL.",
			"크래시가 Windows 시스템 DLL에서 보고되었습니다. 실제 원인은 다른 모드/DLL일 수 있습니다.",
		).Append(confSuffix(model.TierLow)), model.TierLow

	case c.hasModule() && c.fault.IsGameExe:
		if hasSuspect {
			return model.T(
				"Crash is reported in the game executable, but "+basis.EN+" points to "+suspect+".",
				"크래시 위치가 게임 본체(EXE)로 보고되었지만, "+basis.KO+"에서는 "+suspect+" 가 유력합니다.",
			).Append(confSuffix(suspectTier)), suspectTier
		}
		return model.T(
			"Crash is reported in the game executable. Version mismatch/hook conflict is possible.",
			"크래시 위치가 게임 본체(EXE)로 보고되었습니다. 버전 불일치/후킹 충돌 가능성이 있습니다.",
		).Append(confSuffix(model.TierMedium)), model.TierMedium

	case c.isHang():
		prefix := model.T("Likely a freeze/infinite loading.", "프리징/무한로딩으로 추정됩니다.")
		if h := c.in.Hang; h != nil && h.ThresholdSec > 0 {
			kind := string(c.in.Kind)
			prefix = model.T(
				fmt.Sprintf("Hang detected (capture=%s, heartbeatAge=%.1fs >= %ds).", kind, h.SecondsSinceHeartbeat, h.ThresholdSec),
				fmt.Sprintf("프리징 감지(capture=%s, heartbeatAge=%.1fs >= %ds).", kind, h.SecondsSinceHeartbeat, h.ThresholdSec))
		}
		if hasSuspect {
			return prefix.Append(model.T(
				" Candidate: "+suspect+" - based on "+basis.EN+" heuristic.",
				" 후보: "+suspect+" - "+basis.KO+" 기반 추정입니다.",
			)).Append(confSuffix(suspectTier)), suspectTier
		}
		return prefix.Append(model.T(
			" Dump alone isn't enough to identify a candidate.",
			" 덤프만으로 후보를 특정하기 어렵습니다.",
		)).Append(confSuffix(model.TierLow)), model.TierLow
	}

	if hasSuspect {
		return model.T(
			"Top suspect: "+suspect+" - based on "+basis.EN+" heuristic.",
			"유력 후보: "+suspect+" - "+basis.KO+" 기반 추정입니다.",
		).Append(confSuffix(suspectTier)), suspectTier
	}
	return model.T(
		"Dump alone isn't enough to identify a top suspect.",
		"덤프만으로 유력 후보를 특정하기 어렵습니다.",
	).Append(confSuffix(model.TierLow)), model.TierLow
}

// signaturePrefix leads the summary with a matched known pattern.
func signaturePrefix(sig *model.SignatureMatch) model.Text {
	head := model.T("Known crash pattern "+sig.ID+": ", "알려진 크래시 패턴 "+sig.ID+": ")
	cause := sig.Cause
	if cause.IsZero() {
		cause = model.T(sig.ID, sig.ID)
	}
	return head.Append(cause).Append(model.T(" ", " "))
}
