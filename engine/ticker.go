package engine

import (
	"context"
	"time"

	"github.com/ftahirops/xtriage/model"
)

// Source yields telemetry records in order. Next returns io.EOF once the
// stream is exhausted.
type Source interface {
	Next(ctx context.Context) (model.TelemetryRecord, error)
}

// pacedSource spaces heartbeat records at least interval apart. Crash and
// exit records pass through immediately.
type pacedSource struct {
	src      Source
	interval time.Duration
	ticker   *time.Ticker
}

// Paced wraps src so heartbeats are delivered at most once per interval.
// A non-positive interval returns src unchanged.
func Paced(src Source, interval time.Duration) Source {
	if interval <= 0 {
		return src
	}
	return &pacedSource{src: src, interval: interval}
}

func (p *pacedSource) Next(ctx context.Context) (model.TelemetryRecord, error) {
	rec, err := p.src.Next(ctx)
	if err != nil || rec.Kind != model.TelemetryHeartbeat {
		return rec, err
	}
	if p.ticker == nil {
		p.ticker = time.NewTicker(p.interval)
		return rec, nil
	}
	select {
	case <-ctx.Done():
		p.ticker.Stop()
		return model.TelemetryRecord{}, ctx.Err()
	case <-p.ticker.C:
		return rec, nil
	}
}
