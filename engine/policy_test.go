package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ftahirops/xtriage/model"
)

func TestDecideRecapture(t *testing.T) {
	on := RecaptureInput{Enabled: true, AutoAnalyze: true, UnknownFault: true, UnknownStreak: 2, UnknownThreshold: 2}
	tests := []struct {
		name   string
		mutate func(*RecaptureInput)
		want   bool
		thresh uint32
	}{
		{"all conditions met", func(*RecaptureInput) {}, true, 2},
		{"disabled", func(in *RecaptureInput) { in.Enabled = false }, false, 2},
		{"no auto analysis", func(in *RecaptureInput) { in.AutoAnalyze = false }, false, 2},
		{"fault known", func(in *RecaptureInput) { in.UnknownFault = false }, false, 2},
		{"streak below threshold", func(in *RecaptureInput) { in.UnknownStreak = 1 }, false, 2},
		{"already full", func(in *RecaptureInput) { in.DumpMode = model.DumpModeFull }, false, 2},
		{"zero threshold acts as one", func(in *RecaptureInput) { in.UnknownThreshold = 0; in.UnknownStreak = 1 }, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := on
			tt.mutate(&in)
			got := DecideRecapture(in)
			if got.Recapture != tt.want || got.Threshold != tt.thresh {
				t.Errorf("DecideRecapture() = %+v, want recapture=%v threshold=%d", got, tt.want, tt.thresh)
			}
		})
	}
}

func TestShouldRunHeadless(t *testing.T) {
	tests := []struct {
		auto, viewer, required, want bool
	}{
		{false, false, false, false},
		{false, false, true, false},
		{true, false, false, true},
		{true, true, false, false},
		{true, true, true, true},
	}
	for _, tt := range tests {
		if got := ShouldRunHeadless(tt.auto, tt.viewer, tt.required); got != tt.want {
			t.Errorf("ShouldRunHeadless(%v, %v, %v) = %v, want %v", tt.auto, tt.viewer, tt.required, got, tt.want)
		}
	}
}

func TestClampAnalysisTimeout(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, MinAnalysisTimeout},
		{time.Second, MinAnalysisTimeout},
		{30 * time.Second, 30 * time.Second},
		{time.Hour, MaxAnalysisTimeout},
	}
	for _, tt := range tests {
		if got := ClampAnalysisTimeout(tt.in); got != tt.want {
			t.Errorf("ClampAnalysisTimeout(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPendingAnalysisReplacesActive(t *testing.T) {
	var p PendingAnalysis
	ctx := context.Background()

	firstStarted := make(chan struct{})
	firstErr := make(chan error, 1)
	p.Start(ctx, "a.dmp", time.Minute, func(ctx context.Context) error {
		close(firstStarted)
		<-ctx.Done()
		firstErr <- ctx.Err()
		return ctx.Err()
	})
	<-firstStarted
	if path, ok := p.Active(); !ok || path != "a.dmp" {
		t.Fatalf("Active() = %q, %v", path, ok)
	}

	release := make(chan struct{})
	wantErr := errors.New("boom")
	p.Start(ctx, "b.dmp", time.Minute, func(context.Context) error {
		<-release
		return wantErr
	})
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("first analysis ended with %v, want context.Canceled", err)
		}
	default:
		t.Fatal("Start returned before the previous analysis exited")
	}
	if path, ok := p.Active(); !ok || path != "b.dmp" {
		t.Errorf("Active() = %q, %v, want b.dmp", path, ok)
	}

	close(release)
	if err := p.Wait(); !errors.Is(err, wantErr) {
		t.Errorf("Wait() = %v, want %v", err, wantErr)
	}
	if _, ok := p.Active(); ok {
		t.Error("analysis still active after Wait")
	}
}

func TestPendingAnalysisCancelIdle(t *testing.T) {
	var p PendingAnalysis
	p.Cancel()
	if err := p.Wait(); err != nil {
		t.Errorf("Wait() on idle = %v", err)
	}
}
