package model

import "time"

// Shared state flag bits written by the in-process capture shim.
const (
	StateFrozen  uint32 = 1 << 0 // shim stopped writing after a crash mark
	StateLoading uint32 = 1 << 1 // loading screen detected
	StateInMenu  uint32 = 1 << 2 // any menu open
)

// HeartbeatSample is one poll of the liveness signal from the monitored process.
// Ticks are monotonic performance-counter values; TickFrequency converts them to seconds.
type HeartbeatSample struct {
	Time               time.Time `json:"time"`
	NowTicks           uint64    `json:"now_ticks"`
	HeartbeatTicks     uint64    `json:"heartbeat_ticks"`
	TickFrequency      uint64    `json:"tick_frequency"`
	StateFlags         uint32    `json:"state_flags"`
	IsForeground       bool      `json:"is_foreground"`
	IsWindowResponsive bool      `json:"is_window_responsive"`
}

// IsLoading reports whether the loading bit is set.
func (s HeartbeatSample) IsLoading() bool { return s.StateFlags&StateLoading != 0 }

// InMenu reports whether the menu bit is set.
func (s HeartbeatSample) InMenu() bool { return s.StateFlags&StateInMenu != 0 }

// HangSuppressionState persists across monitor ticks.
// ForegroundResumeTicks is only non-zero while SuppressedHeartbeatTicks is non-zero.
type HangSuppressionState struct {
	SuppressedHeartbeatTicks uint64 `json:"suppressed_heartbeat_ticks"`
	ForegroundResumeTicks    uint64 `json:"foreground_resume_ticks"`
}

// HangSuppressionReason explains a suppress / no-suppress decision.
type HangSuppressionReason uint8

const (
	ReasonNone HangSuppressionReason = iota
	ReasonNotForeground
	ReasonForegroundGrace
	ReasonForegroundResponsive
)

func (r HangSuppressionReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNotForeground:
		return "not_foreground"
	case ReasonForegroundGrace:
		return "foreground_grace"
	case ReasonForegroundResponsive:
		return "foreground_responsive"
	}
	return "unknown"
}

// MarshalText renders the reason code for JSON logs.
func (r HangSuppressionReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// HangDetection is the raw "is the heartbeat stale" decision before suppression.
type HangDetection struct {
	IsHang                bool    `json:"is_hang"`
	IsLoading             bool    `json:"is_loading"`
	ThresholdSec          uint32  `json:"threshold_sec"`
	SecondsSinceHeartbeat float64 `json:"seconds_since_heartbeat"`
}

// HangDecision is the output of one suppression evaluation.
type HangDecision struct {
	Suppress bool                  `json:"suppress"`
	Reason   HangSuppressionReason `json:"reason"`
}

// TelemetryKind distinguishes records in a telemetry stream.
type TelemetryKind string

const (
	TelemetryHeartbeat TelemetryKind = "heartbeat"
	TelemetryCrash     TelemetryKind = "crash"
	TelemetryExit      TelemetryKind = "exit"
)

// TelemetryRecord is one line of the telemetry stream produced by the capture shim.
// Exactly one of Heartbeat / Crash / Exit is populated according to Kind.
type TelemetryRecord struct {
	Kind      TelemetryKind    `json:"kind"`
	Heartbeat *HeartbeatSample `json:"heartbeat,omitempty"`
	Crash     *RawCrashSignal  `json:"crash,omitempty"`
	Exit      *ProcessExit     `json:"exit,omitempty"`
}

// RawCrashSignal carries the exception values exactly as the shim reported them.
type RawCrashSignal struct {
	ExceptionCode uint32 `json:"exception_code"`
	ExceptionAddr uint64 `json:"exception_addr"`
	FaultingTID   uint32 `json:"faulting_tid"`
	StateFlags    uint32 `json:"state_flags"`
	DumpPath      string `json:"dump_path,omitempty"`
}

// ProcessExit is reported once the monitored process has gone away.
type ProcessExit struct {
	ExitCode uint32 `json:"exit_code"`
}

// UnmarshalText parses a reason code written by MarshalText.
func (r *HangSuppressionReason) UnmarshalText(b []byte) error {
	switch string(b) {
	case "not_foreground":
		*r = ReasonNotForeground
	case "foreground_grace":
		*r = ReasonForegroundGrace
	case "foreground_responsive":
		*r = ReasonForegroundResponsive
	default:
		*r = ReasonNone
	}
	return nil
}

// MonitorEventKind labels one line of the monitor decision log.
type MonitorEventKind string

const (
	EventHangSuppressed MonitorEventKind = "hang_suppressed"
	EventHangCapture    MonitorEventKind = "hang_capture"
	EventHangCleared    MonitorEventKind = "hang_cleared"
	EventCrash          MonitorEventKind = "crash"
	EventVerdict        MonitorEventKind = "verdict"
	EventViewer         MonitorEventKind = "viewer"
	EventAnalysis       MonitorEventKind = "analysis"
	EventExit           MonitorEventKind = "exit"
)

// MonitorEvent is one decision taken by the monitor loop.
type MonitorEvent struct {
	Time      time.Time        `json:"ts"`
	Kind      MonitorEventKind `json:"kind"`
	Detection *HangDetection   `json:"detection,omitempty"`
	Decision  *HangDecision    `json:"decision,omitempty"`
	Crash     *CrashEventInfo  `json:"crash,omitempty"`
	Verdict   *FilterVerdict   `json:"verdict,omitempty"`
	ExitCode  *uint32          `json:"exit_code,omitempty"`
	DumpPath  string           `json:"dump_path,omitempty"`
	Message   string           `json:"message,omitempty"`
}
