package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ftahirops/xtriage/model"
)

func hb(now, last uint64) model.TelemetryRecord {
	return model.TelemetryRecord{Kind: model.TelemetryHeartbeat, Heartbeat: &model.HeartbeatSample{
		NowTicks: now, HeartbeatTicks: last, TickFrequency: 100, IsForeground: true,
	}}
}

func encodeRecords(t *testing.T, recs ...model.TelemetryRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	return buf.Bytes()
}

func TestPlayerReplaysRecords(t *testing.T) {
	data := encodeRecords(t, hb(100, 100), hb(200, 150))
	data = append(data, []byte("not json\n{\"kind\":\"crash\"}\n{\"kind\":\"bogus\"}\n")...)
	data = append(data, encodeRecords(t, model.TelemetryRecord{Kind: model.TelemetryExit, Exit: &model.ProcessExit{ExitCode: 1}})...)

	p, err := NewPlayer(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (malformed lines skipped)", p.Len())
	}

	ctx := context.Background()
	r1, _ := p.Next(ctx)
	if r1.Heartbeat == nil || r1.Heartbeat.NowTicks != 100 {
		t.Fatalf("first record = %+v", r1)
	}
	p.Seek(2)
	r3, _ := p.Next(ctx)
	if r3.Kind != model.TelemetryExit || r3.Exit.ExitCode != 1 {
		t.Fatalf("record after Seek(2) = %+v", r3)
	}
	if _, err := p.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end error = %v, want io.EOF", err)
	}
	p.Seek(-5)
	if p.Index() != 0 {
		t.Errorf("Seek(-5) index = %d, want 0", p.Index())
	}
}

func TestRecorderTeesRecords(t *testing.T) {
	p, err := NewPlayer(bytes.NewReader(encodeRecords(t, hb(1, 1), hb(2, 2))))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	rec := NewRecorder(p, &out)
	ctx := context.Background()
	for {
		if _, err := rec.Next(ctx); err != nil {
			if !errors.Is(err, io.EOF) {
				t.Fatalf("Next() error = %v", err)
			}
			break
		}
	}
	if rec.Recorded() != 2 {
		t.Errorf("Recorded() = %d, want 2", rec.Recorded())
	}

	replay, err := NewPlayer(&out)
	if err != nil {
		t.Fatal(err)
	}
	if replay.Len() != 2 {
		t.Errorf("replayed Len() = %d, want 2", replay.Len())
	}
}

func TestStreamSourceSkipsMalformed(t *testing.T) {
	in := "garbage\n" + string(encodeRecords(t, hb(5, 5)))
	src := NewStreamSource(strings.NewReader(in))
	ctx := context.Background()

	r, err := src.Next(ctx)
	if err != nil || r.Heartbeat == nil || r.Heartbeat.NowTicks != 5 {
		t.Fatalf("Next() = %+v, %v", r, err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end error = %v, want io.EOF", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := NewStreamSource(strings.NewReader(in)).Next(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Next(cancelled) error = %v", err)
	}
}
