package engine

import (
	"testing"

	"github.com/ftahirops/xtriage/model"
)

func TestIsStrongException(t *testing.T) {
	tests := []struct {
		code uint32
		want bool
	}{
		{0, false},
		{StatusInvalidHandle, false},
		{StatusCppException, false},
		{StatusClrException, false},
		{StatusBreakpoint, false},
		{StatusControlCExit, false},
		{StatusAccessViolation, true},
		{0xC00000FD, true},
		{0xC0000409, true},
		{0xDEADBEEF, true},
	}
	for _, tt := range tests {
		if got := IsStrongException(tt.code); got != tt.want {
			t.Errorf("IsStrongException(0x%08X) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestNewCrashEvent(t *testing.T) {
	ev := NewCrashEvent(StatusAccessViolation, 0x12345678, 777, model.StateInMenu|0x10)
	want := model.CrashEventInfo{
		ExceptionCode: StatusAccessViolation,
		ExceptionAddr: 0x12345678,
		FaultingTID:   777,
		StateFlags:    model.StateInMenu | 0x10,
		IsStrong:      true,
		InMenu:        true,
	}
	if ev != want {
		t.Errorf("NewCrashEvent() = %+v, want %+v", ev, want)
	}

	zero := NewCrashEvent(0, 0, 0, 0)
	if zero.IsStrong || zero.InMenu {
		t.Errorf("NewCrashEvent(0...) = %+v, want weak and not in menu", zero)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		exit  uint32
		code  uint32
		flags uint32
		want  model.FilterVerdict
	}{
		{"no exception clean exit", 0, 0, 0, model.DeleteBenign},
		{"invalid handle clean exit", 0, StatusInvalidHandle, 0, model.DeleteBenign},
		{"c++ throw clean exit", 0, StatusCppException, 0, model.DeleteBenign},
		{"ctrl-c clean exit in menu", 0, StatusControlCExit, model.StateInMenu, model.DeleteBenign},
		{"access violation clean exit", 0, StatusAccessViolation, 0, model.KeepDump},
		{"unknown code clean exit", 0, 0xC0001234, 0, model.KeepDump},
		{"non-zero exit in menu", 1, 0, model.StateInMenu, model.KeepDump},
		{"non-zero exit outside menu", 1, 0, 0, model.KeepDump},
		{"non-zero exit weak code", 0xC0000409, StatusBreakpoint, 0, model.KeepDump},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.exit, NewCrashEvent(tt.code, 0, 0, tt.flags))
			if got != tt.want {
				t.Errorf("Classify(%d, 0x%08X) = %v, want %v", tt.exit, tt.code, got, tt.want)
			}
		})
	}
}

func TestClassifyWeakSetExhaustive(t *testing.T) {
	for code := range weakExceptions {
		if got := Classify(0, NewCrashEvent(code, 0, 0, 0)); got != model.DeleteBenign {
			t.Errorf("Classify(0, 0x%08X) = %v, want delete_benign", code, got)
		}
		for _, exit := range []uint32{1, 3, 0xFFFFFFFF} {
			if got := Classify(exit, NewCrashEvent(code, 0, 0, 0)); got != model.KeepDump {
				t.Errorf("Classify(%d, 0x%08X) = %v, want keep_dump", exit, code, got)
			}
		}
	}
}

func TestQueueDeferredCrashViewer(t *testing.T) {
	if QueueDeferredCrashViewer(`C:\dumps\a.dmp`, nil) {
		t.Fatal("nil slot accepted a path")
	}

	var slot string
	if !QueueDeferredCrashViewer(`C:\dumps\a.dmp`, &slot) {
		t.Fatal("empty slot rejected a path")
	}
	if slot != `C:\dumps\a.dmp` {
		t.Fatalf("slot = %q after queue", slot)
	}
	if !QueueDeferredCrashViewer(`C:\dumps\a.dmp`, &slot) {
		t.Fatal("same path was not idempotent")
	}
	if QueueDeferredCrashViewer(`C:\dumps\b.dmp`, &slot) {
		t.Fatal("second distinct path was accepted")
	}
	if slot != `C:\dumps\a.dmp` {
		t.Fatalf("slot changed to %q after rejected queue", slot)
	}
}
