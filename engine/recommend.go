package engine

import (
	"fmt"

	"github.com/ftahirops/xtriage/model"
)

var (
	stepRetestPlugins = model.T(
		"[Check] Disable recently added/updated SKSE plugin DLLs one by one and retest.",
		"[점검] 최근 추가/업데이트한 SKSE 플러그인(DLL)부터 하나씩 제외하며 재현 여부 확인")
	stepSystemDLL = model.T(
		"[Check] When a Windows system DLL is shown, the real culprit is often another mod/DLL.",
		"[점검] Windows 시스템 DLL로 표시될 때는 실제 원인이 다른 모드/DLL인 경우가 많습니다.")
	stepFullDump = model.T(
		"[Check] Fault module could not be determined. Capturing again with a full-memory dump can provide more clues.",
		"[점검] 덤프에서 fault module을 특정하지 못했습니다. 전체 메모리 덤프로 다시 캡처하면 단서가 늘 수 있습니다.")
)

// recommend builds the generic troubleshooting checklist for an incident.
// Knowledge-base recommendations are prepended by the synthesizer.
func recommend(c reportContext) []model.Text {
	var out []model.Text
	add := func(en, ko string) { out = append(out, model.T(en, ko)) }

	if c.isSnapshot() {
		add("[Snapshot] No exception/crash info is present. This dump alone is not enough to blame a mod.",
			"[정상/스냅샷] 예외(크래시) 정보가 없습니다. 이 덤프만으로 '어떤 모드가 크래시 원인'인지 판단하기 어렵습니다.")
		add("[Snapshot] Capture during a real issue for diagnosis: (1) real CTD dump, (2) manual capture during freeze/infinite loading or an auto hang dump.",
			"[정상/스냅샷] 문제 상황에서 캡처해야 진단이 가능합니다: (1) 실제 크래시 덤프, (2) 프리징/무한로딩 중 수동 캡처 또는 자동 감지 덤프")
	}

	if code := c.in.ExceptionCode; code != 0 {
		if code == StatusAccessViolation {
			add("[Basics] ExceptionCode=0xC0000005 (Access Violation). Often caused by DLL hooks / invalid memory access.",
				"[기본] ExceptionCode=0xC0000005(접근 위반)입니다. 보통 DLL 후킹/메모리 접근 문제로 발생합니다.")
		} else {
			add(fmt.Sprintf("[Basics] ExceptionCode=0x%08X.", code),
				fmt.Sprintf("[기본] ExceptionCode=0x%08X 입니다.", code))
		}
		if code == StatusCppException {
			add("[Interpretation] 0xE06D7363 is a common C++ exception (throw) code. It can occur during normal throw/catch.",
				"[해석] 0xE06D7363은 흔한 C++ 예외(throw) 코드입니다. 정상 동작 중에도 throw/catch로 발생할 수 있습니다.")
			add("[Interpretation] If the game did not actually crash, this dump may be a handled exception false positive.",
				"[해석] 게임이 실제로 튕기지 않았다면, 이 덤프는 '실제 CTD'가 아니라 'handled exception 오탐'일 수 있습니다.")
			add("[Config] Setting the crash hook to fatal exceptions only (CrashHookMode=1) greatly reduces these false positives.",
				"[설정] 크래시 훅을 치명 예외만(CrashHookMode=1)으로 두면 이런 오탐을 크게 줄일 수 있습니다.")
		}
	}

	if top, ok := c.ev.Top(); (ok && top.IsHookFramework) || c.fault.IsHookFramework {
		add("[Hook framework] This mod extensively hooks the game engine. It may be a victim of memory corruption caused by another mod, not the root cause itself. Check other suspect candidates first.",
			"[훅 프레임워크] 이 모드는 게임 엔진을 광범위하게 훅합니다. 다른 모드의 메모리 오염으로 인한 피해자일 수 있으며, 이 모드 자체가 원인이 아닐 수 있습니다. 다른 후보 모드를 먼저 점검하세요.")
	}

	if name := c.fault.InferredModName; name != "" {
		add("[Top suspect] Reproduce after updating/reinstalling '"+name+"'.",
			"[유력 후보] '"+name+"' 모드를 업데이트/재설치 후 재현 여부 확인")
		add("[Top suspect] If it repeats, disable the mod (or its SKSE plugin DLL) and retest: '"+name+"'.",
			"[유력 후보] 동일 크래시가 반복되면 '"+name+"' 모드(또는 해당 모드의 SKSE 플러그인 DLL)를 비활성화 후 재현 여부 확인")
	} else if top, ok := c.ev.Top(); ok {
		basis := c.basis()
		switch {
		case top.InferredModName != "":
			name := top.InferredModName
			add("[Top suspect] "+basis.EN+" candidate: reproduce after updating/reinstalling '"+name+"'.",
				"[유력 후보] "+basis.KO+" 기반 후보: '"+name+"' 모드 업데이트/재설치 후 재현 여부 확인")
			add("[Top suspect] If it repeats, disable the mod (or its SKSE plugin DLL) and retest: '"+name+"'.",
				"[유력 후보] 동일 문제가 반복되면 '"+name+"' 모드(또는 해당 모드의 SKSE 플러그인 DLL)를 비활성화 후 재현 여부 확인")
		case top.Module != "":
			add("[Top suspect] "+basis.EN+" candidate DLL: "+top.Module+" - check the providing mod first.",
				"[유력 후보] "+basis.KO+" 기반 후보 DLL: "+top.Module+" - 포함된 모드를 우선 점검")
		}
	}

	switch {
	case c.faultInMod():
		add("[Top suspect] Verify prerequisites/versions for the mod containing this DLL (SKSE / Address Library / game runtime).",
			"[유력 후보] 해당 DLL이 포함된 모드의 선행 모드/요구 버전(SKSE/Address Library/엔진 버전) 충족 여부 확인")
		add("[Top suspect] Attach this report and the dump when reporting to the mod author.",
			"[유력 후보] 이 리포트와 덤프를 모드 제작자에게 첨부")
	case c.hasModule() && c.fault.IsGameExe:
		add("[Check] Crash location is the game executable. Version mismatch (Address Library/SKSE) or hook conflicts are likely.",
			"[점검] 크래시 위치가 게임 본체(EXE)로 나옵니다. Address Library/ SKSE 버전 불일치 또는 후킹 충돌 가능성이 큽니다.")
		out = append(out, stepRetestPlugins)
	case c.hasModule() && c.fault.IsSystem:
		out = append(out, stepSystemDLL, stepRetestPlugins)
		add("[Check] Verify SKSE version, game runtime (AE/SE/VR), and Address Library all match.",
			"[점검] SKSE 버전/게임 버전(AE/SE/VR)/Address Library 버전이 서로 맞는지 확인")
	case !c.isSnapshot():
		out = append(out, stepFullDump)
	}

	if c.isLoading() {
		add("[Loading] Crashes right after load screens often involve animation/mesh/texture/skeleton/script initialization.",
			"[로딩 중] 로딩 화면/세이브 로드 직후 크래시는 애니메이션/메쉬/텍스처/스켈레톤/스크립트 초기화 쪽이 흔합니다.")
		add("[Loading] Check mods affecting that stage first (animations/skeleton/body/physics/precaching).",
			"[로딩 중] 해당 시점에 개입하는 모드(애니메이션/스켈레톤/바디/물리/프리캐시)를 우선 점검")
	}

	if h := c.in.Hang; h != nil {
		switch {
		case c.isHang():
			if h.Cycles > 0 {
				add("[Hang] The wait chain shows threads in a cycle. Deadlock is likely.",
					"[프리징] 대기 체인에서 순환(cycle) 스레드가 감지되었습니다. 데드락 가능성이 높습니다.")
			} else {
				add("[Hang] No wait-chain cycle: possible infinite loop / busy wait.",
					"[프리징] 대기 체인 순환이 없으면 무한루프/바쁜 대기(busy wait) 가능성도 있습니다.")
			}
			add("[Hang] If it repeats, use the events recorded just before the freeze to narrow related mods.",
				"[프리징] 프리징이 반복되면 문제 상황 직전에 기록된 이벤트를 기준으로 관련 모드를 점검")
		case c.isManual() && c.isSnapshot():
			if h.ThresholdSec > 0 && h.SecondsSinceHeartbeat < float64(h.ThresholdSec) {
				add(fmt.Sprintf("[Manual] At capture time, heartbeatAge=%.1fs < threshold=%ds, so it is not considered a hang.", h.SecondsSinceHeartbeat, h.ThresholdSec),
					fmt.Sprintf("[수동] 수동 캡처 당시 heartbeatAge=%.1fs < threshold=%ds 이므로 '프리징/무한로딩'으로 판단되지 않습니다.", h.SecondsSinceHeartbeat, h.ThresholdSec))
			}
			add("[Manual] For real freezes/infinite loading, check the wait chain of a capture taken during the issue.",
				"[수동] 실제 프리징/무한로딩 중 캡처한 덤프의 대기 체인 정보를 참고하세요.")
		}
	}
	return out
}
