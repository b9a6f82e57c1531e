package model

import "fmt"

// CrashEventInfo is built once from raw signal values and never mutated.
type CrashEventInfo struct {
	ExceptionCode uint32 `json:"exception_code"`
	ExceptionAddr uint64 `json:"exception_addr"`
	FaultingTID   uint32 `json:"faulting_tid"`
	StateFlags    uint32 `json:"state_flags"`
	IsStrong      bool   `json:"is_strong"`
	InMenu        bool   `json:"in_menu"`
}

// FilterVerdict is the terminal classification of one crash event.
type FilterVerdict int

const (
	KeepDump FilterVerdict = iota
	DeleteBenign
)

func (v FilterVerdict) String() string {
	switch v {
	case KeepDump:
		return "keep_dump"
	case DeleteBenign:
		return "delete_benign"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// MarshalText renders the verdict for JSON output.
func (v FilterVerdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses keep_dump / delete_benign.
func (v *FilterVerdict) UnmarshalText(b []byte) error {
	switch string(b) {
	case "keep_dump":
		*v = KeepDump
	case "delete_benign":
		*v = DeleteBenign
	default:
		return fmt.Errorf("unknown verdict %q", b)
	}
	return nil
}

// DumpMode mirrors the capture shim's minidump detail levels.
type DumpMode int

const (
	DumpModeMini DumpMode = iota
	DumpModeDefault
	DumpModeFull
)
