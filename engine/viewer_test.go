package engine

import (
	"context"
	"errors"
	"testing"
)

type fakeLauncher struct {
	opened []string
	err    error
}

func (f *fakeLauncher) Launch(_ context.Context, path string) error {
	if f.err != nil {
		return f.err
	}
	f.opened = append(f.opened, path)
	return nil
}

func TestDeferredViewer(t *testing.T) {
	l := &fakeLauncher{}
	v := NewDeferredViewer(l)

	if err := v.Queue("a.dmp"); err != nil {
		t.Fatalf("Queue(a) error = %v", err)
	}
	if err := v.Queue("a.dmp"); err != nil {
		t.Errorf("Queue(a) again error = %v, want nil", err)
	}
	if err := v.Queue("b.dmp"); !errors.Is(err, ErrNoSlot) {
		t.Errorf("Queue(b) error = %v, want ErrNoSlot", err)
	}
	if v.Pending() != "a.dmp" {
		t.Errorf("Pending() = %q", v.Pending())
	}

	path, opened, err := v.Flush(context.Background())
	if err != nil || !opened || path != "a.dmp" {
		t.Fatalf("Flush() = %q, %v, %v", path, opened, err)
	}
	if v.Pending() != "" {
		t.Error("slot not cleared after Flush")
	}
	if _, opened, _ := v.Flush(context.Background()); opened {
		t.Error("Flush() on empty slot opened a viewer")
	}

	_ = v.Queue("c.dmp")
	v.Discard()
	if err := v.Queue("d.dmp"); err != nil {
		t.Errorf("Queue after Discard error = %v", err)
	}
	if len(l.opened) != 1 {
		t.Errorf("launched %v, want only a.dmp", l.opened)
	}
}

func TestDeferredViewerLaunchError(t *testing.T) {
	v := NewDeferredViewer(&fakeLauncher{err: errors.New("boom")})
	_ = v.Queue("a.dmp")
	if _, opened, err := v.Flush(context.Background()); err == nil || opened {
		t.Errorf("Flush() = %v, %v, want error", opened, err)
	}
	if v.Pending() != "" {
		t.Error("slot kept after failed launch")
	}
}

func TestCommandViewerRequiresCommand(t *testing.T) {
	if err := (CommandViewer{}).Launch(context.Background(), "a.dmp"); err == nil {
		t.Error("Launch() without command succeeded")
	}
}
