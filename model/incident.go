package model

import (
	"fmt"
	"time"
)

// Frame is one precise stack-walk frame of the faulting (or primary) thread.
type Frame struct {
	Address  uint64 `json:"address"`
	Function string `json:"function,omitempty"`
}

// PluginInfo is one entry of the plugin scan produced alongside a capture.
type PluginInfo struct {
	Filename      string   `json:"filename"`
	HeaderVersion float64  `json:"header_version"`
	IsESL         bool     `json:"is_esl"`
	IsActive      bool     `json:"is_active"`
	Masters       []string `json:"masters,omitempty"`
}

// PluginScan is the load-order snapshot collected by the capture helper.
type PluginScan struct {
	GameExeVersion string       `json:"game_exe_version"`
	PluginsSource  string       `json:"plugins_source"`
	MO2Detected    bool         `json:"mo2_detected"`
	Plugins        []PluginInfo `json:"plugins"`
}

// CaptureKind says what triggered the capture.
type CaptureKind string

const (
	CaptureCrash    CaptureKind = "crash"
	CaptureHang     CaptureKind = "hang"
	CaptureManual   CaptureKind = "manual"
	CaptureSnapshot CaptureKind = "snapshot"
)

// HangContext carries the heartbeat numbers observed when a hang capture fired.
type HangContext struct {
	SecondsSinceHeartbeat float64 `json:"seconds_since_heartbeat"`
	ThresholdSec          uint32  `json:"threshold_sec"`
	Cycles                int     `json:"wait_chain_cycles,omitempty"`
}

// Incident is the forensic input of one analysis pass: everything the capture
// helper extracted from the artifact, already decoded.
type Incident struct {
	ID         string      `json:"id,omitempty"`
	DumpFile   string      `json:"dump_file"`
	Kind       CaptureKind `json:"kind"`
	CapturedAt time.Time   `json:"captured_at"`

	ExceptionCode uint32 `json:"exception_code"`
	ExceptionAddr uint64 `json:"exception_addr"`
	FaultingTID   uint32 `json:"faulting_tid"`
	StateFlags    uint32 `json:"state_flags"`
	ExitCode      uint32 `json:"exit_code"`

	GameVersion string   `json:"game_version,omitempty"`
	Modules     []Module `json:"modules"`
	Frames      []Frame  `json:"frames,omitempty"`

	StackPointer uint64 `json:"stack_pointer,omitempty"`
	StackBase    uint64 `json:"stack_base,omitempty"`
	StackBytes   []byte `json:"stack_bytes,omitempty"`

	PluginScan *PluginScan  `json:"plugin_scan,omitempty"`
	Hang       *HangContext `json:"hang,omitempty"`

	// Modules named by an external crash logger's callstack, most relevant first.
	CrashLoggerModules   []string `json:"crash_logger_modules,omitempty"`
	CrashLoggerCppModule string   `json:"crash_logger_cpp_module,omitempty"`

	DumpMode DumpMode `json:"dump_mode"`
}

// IsHangLike reports whether the capture was taken for a stall rather than an exception.
func (in *Incident) IsHangLike() bool {
	return in.Kind == CaptureHang
}

// IsSnapshotLike reports a capture with neither an exception nor a hang signal.
func (in *Incident) IsSnapshotLike() bool {
	if in.ExceptionCode != 0 || in.IsHangLike() {
		return false
	}
	return in.Kind == CaptureSnapshot || in.Kind == CaptureManual
}

// FaultSite is the module and offset the exception address resolves into.
type FaultSite struct {
	Module          string `json:"module,omitempty"`
	Path            string `json:"path,omitempty"`
	Offset          uint64 `json:"offset"`
	InferredModName string `json:"inferred_mod_name,omitempty"`
	IsSystem        bool   `json:"is_system,omitempty"`
	IsGameExe       bool   `json:"is_game_exe,omitempty"`
	IsHookFramework bool   `json:"is_hook_framework,omitempty"`
}

// Known reports whether the fault address resolved to a module.
func (f FaultSite) Known() bool { return f.Module != "" }

// PlusOffset renders "module+0xoff", or "" when unresolved.
func (f FaultSite) PlusOffset() string {
	if f.Module == "" {
		return ""
	}
	return fmt.Sprintf("%s+0x%x", f.Module, f.Offset)
}
