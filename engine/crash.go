package engine

import (
	"fmt"

	"github.com/ftahirops/xtriage/model"
)

// Exception codes with special meaning to the classifier and the report text.
const (
	StatusAccessViolation uint32 = 0xC0000005
	StatusInvalidHandle   uint32 = 0xC0000008
	StatusCppException    uint32 = 0xE06D7363
	StatusClrException    uint32 = 0xE0434F4D
	StatusBreakpoint      uint32 = 0x80000003
	StatusControlCExit    uint32 = 0xC000013A
)

// weakExceptions surface on benign shutdown paths and handled throws.
var weakExceptions = map[uint32]bool{
	StatusInvalidHandle: true,
	StatusCppException:  true,
	StatusClrException:  true,
	StatusBreakpoint:    true,
	StatusControlCExit:  true,
}

// IsStrongException reports whether code indicates a real fault.
// Code 0 ("no exception") is always weak; unknown codes are strong.
func IsStrongException(code uint32) bool {
	if code == 0 {
		return false
	}
	return !weakExceptions[code]
}

// NewCrashEvent builds the immutable event record from raw signal values.
func NewCrashEvent(code uint32, addr uint64, tid uint32, stateFlags uint32) model.CrashEventInfo {
	return model.CrashEventInfo{
		ExceptionCode: code,
		ExceptionAddr: addr,
		FaultingTID:   tid,
		StateFlags:    stateFlags,
		IsStrong:      IsStrongException(code),
		InMenu:        stateFlags&model.StateInMenu != 0,
	}
}

// Classify decides whether the dump of a terminated process is worth keeping.
// Only a clean exit whose triggering exception is weak is discarded; every other
// combination, in or out of menus, keeps the dump.
func Classify(exitCode uint32, ev model.CrashEventInfo) model.FilterVerdict {
	switch {
	case exitCode != 0 && ev.InMenu:
		return model.KeepDump
	case exitCode != 0:
		return model.KeepDump
	case ev.IsStrong:
		return model.KeepDump
	default:
		return model.DeleteBenign
	}
}

// QueueDeferredCrashViewer reserves the single pending-viewer slot for path.
// It succeeds when the slot is empty or already holds path, and leaves the
// slot untouched otherwise. A nil slot always rejects.
func QueueDeferredCrashViewer(path string, slot *string) bool {
	if slot == nil {
		return false
	}
	if *slot == "" {
		*slot = path
		return true
	}
	return *slot == path
}

// ExceptionName returns a short label for well-known exception codes.
func ExceptionName(code uint32) string {
	switch code {
	case 0:
		return "none"
	case StatusAccessViolation:
		return "access violation"
	case StatusInvalidHandle:
		return "invalid handle"
	case StatusCppException:
		return "C++ exception"
	case StatusClrException:
		return "CLR exception"
	case StatusBreakpoint:
		return "breakpoint"
	case StatusControlCExit:
		return "Ctrl-C exit"
	case 0xC00000FD:
		return "stack overflow"
	case 0xC0000409:
		return "stack buffer overrun"
	case 0xC000001D:
		return "illegal instruction"
	case 0xC0000094:
		return "integer divide by zero"
	}
	return fmt.Sprintf("0x%08X", code)
}
