package engine

import (
	"context"
	"sync"
	"time"
)

// Analysis timeout bounds.
const (
	MinAnalysisTimeout = 5 * time.Second
	MaxAnalysisTimeout = 180 * time.Second
)

// ClampAnalysisTimeout keeps a configured timeout within [5s, 180s].
func ClampAnalysisTimeout(d time.Duration) time.Duration {
	return min(max(d, MinAnalysisTimeout), MaxAnalysisTimeout)
}

// PendingAnalysis is the single in-flight out-of-band analysis. Starting a new
// one cancels the previous one and waits for it to return, so two analyses
// never write the same output at once.
type PendingAnalysis struct {
	mu      sync.Mutex
	path    string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Start runs fn for dumpPath under a clamped timeout. Any active analysis is
// cancelled and awaited first.
func (p *PendingAnalysis) Start(ctx context.Context, dumpPath string, timeout time.Duration, fn func(ctx context.Context) error) {
	p.Cancel()

	actx, cancel := context.WithTimeout(ctx, ClampAnalysisTimeout(timeout))
	done := make(chan struct{})

	p.mu.Lock()
	p.path = dumpPath
	p.started = time.Now()
	p.cancel = cancel
	p.done = done
	p.err = nil
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		err := fn(actx)
		p.mu.Lock()
		if p.done == done {
			p.err = err
		}
		p.mu.Unlock()
	}()
}

// Cancel terminates the active analysis, if any, and waits for it to exit.
func (p *PendingAnalysis) Cancel() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.path = ""
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Active returns the dump path of a still-running analysis.
func (p *PendingAnalysis) Active() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return "", false
	}
	select {
	case <-p.done:
		return "", false
	default:
		return p.path, true
	}
}

// Wait blocks until the active analysis finishes and returns its error.
func (p *PendingAnalysis) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
