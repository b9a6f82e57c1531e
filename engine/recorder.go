package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/ftahirops/xtriage/model"
)

// Recorder wraps a source and writes every record it yields as a JSON line.
type Recorder struct {
	src    Source
	writer *json.Encoder
	mu     sync.Mutex
	n      int
}

// NewRecorder creates a recorder that tees src into w.
func NewRecorder(src Source, w io.Writer) *Recorder {
	return &Recorder{src: src, writer: json.NewEncoder(w)}
}

// Next reads from the wrapped source and records the result.
func (r *Recorder) Next(ctx context.Context) (model.TelemetryRecord, error) {
	rec, err := r.src.Next(ctx)
	if err != nil {
		return rec, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// A failed write never stops monitoring.
	if err := r.writer.Encode(rec); err == nil {
		r.n++
	}
	return rec, nil
}

// Recorded returns how many records were written.
func (r *Recorder) Recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Player replays a recorded telemetry file.
type Player struct {
	records []model.TelemetryRecord
	idx     int
	mu      sync.Mutex
}

// NewPlayer reads every record from r (JSON lines). Malformed lines and
// records of unknown kind are skipped.
func NewPlayer(r io.Reader) (*Player, error) {
	var records []model.TelemetryRecord
	sc := newLineScanner(r)
	for sc.Scan() {
		rec, ok := decodeRecord(sc.Bytes())
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &Player{records: records}, nil
}

// Next returns the next recorded record, or io.EOF at the end.
func (p *Player) Next(ctx context.Context) (model.TelemetryRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.TelemetryRecord{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx >= len(p.records) {
		return model.TelemetryRecord{}, io.EOF
	}
	rec := p.records[p.idx]
	p.idx++
	return rec, nil
}

// Len returns the number of records available.
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Index returns the next record index.
func (p *Player) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}

// Seek moves the read position, clamped to the recording.
func (p *Player) Seek(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx = min(max(i, 0), len(p.records))
}

// StreamSource decodes records from a live stream such as a pipe from the
// capture shim. Unlike Player it never buffers the whole input.
type StreamSource struct {
	sc *bufio.Scanner
}

// NewStreamSource reads JSON lines from r.
func NewStreamSource(r io.Reader) *StreamSource {
	return &StreamSource{sc: newLineScanner(r)}
}

// Next blocks until a well-formed record arrives. Cancellation is only
// observed between lines.
func (s *StreamSource) Next(ctx context.Context) (model.TelemetryRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.TelemetryRecord{}, err
		}
		if !s.sc.Scan() {
			if err := s.sc.Err(); err != nil {
				return model.TelemetryRecord{}, err
			}
			return model.TelemetryRecord{}, io.EOF
		}
		if rec, ok := decodeRecord(s.sc.Bytes()); ok {
			return rec, nil
		}
	}
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB line limit
	return sc
}

func decodeRecord(line []byte) (model.TelemetryRecord, bool) {
	var rec model.TelemetryRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return rec, false
	}
	switch rec.Kind {
	case model.TelemetryHeartbeat:
		return rec, rec.Heartbeat != nil
	case model.TelemetryCrash:
		return rec, rec.Crash != nil
	case model.TelemetryExit:
		return rec, rec.Exit != nil
	}
	return rec, false
}
