package engine

import (
	"context"
	"errors"
	"os/exec"
	"sync"
)

// ErrNoSlot is returned when another crash already holds the viewer slot.
var ErrNoSlot = errors.New("a different crash viewer is already pending")

// ViewerLauncher opens the crash viewer for a dump.
type ViewerLauncher interface {
	Launch(ctx context.Context, dumpPath string) error
}

// CommandViewer starts an external program with the dump path appended to
// Args. It does not wait for the program to exit.
type CommandViewer struct {
	Command string
	Args    []string
}

// Launch starts the viewer process.
func (v CommandViewer) Launch(ctx context.Context, dumpPath string) error {
	if v.Command == "" {
		return errors.New("viewer command not configured")
	}
	args := append(append([]string(nil), v.Args...), dumpPath)
	cmd := exec.Command(v.Command, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// DeferredViewer holds at most one crash viewer until the game has exited.
type DeferredViewer struct {
	mu       sync.Mutex
	slot     string
	launcher ViewerLauncher
}

// NewDeferredViewer wraps launcher. A nil launcher still tracks the slot
// but never opens anything.
func NewDeferredViewer(launcher ViewerLauncher) *DeferredViewer {
	return &DeferredViewer{launcher: launcher}
}

// Queue reserves the slot for dumpPath.
func (v *DeferredViewer) Queue(dumpPath string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !QueueDeferredCrashViewer(dumpPath, &v.slot) {
		return ErrNoSlot
	}
	return nil
}

// Pending returns the queued dump path, if any.
func (v *DeferredViewer) Pending() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.slot
}

// Discard empties the slot without opening the viewer.
func (v *DeferredViewer) Discard() {
	v.mu.Lock()
	v.slot = ""
	v.mu.Unlock()
}

// Flush opens the viewer for the queued dump and empties the slot. It
// reports whether a viewer was started.
func (v *DeferredViewer) Flush(ctx context.Context) (string, bool, error) {
	v.mu.Lock()
	path := v.slot
	v.slot = ""
	v.mu.Unlock()
	if path == "" || v.launcher == nil {
		return path, false, nil
	}
	if err := v.launcher.Launch(ctx, path); err != nil {
		return path, false, err
	}
	return path, true, nil
}
