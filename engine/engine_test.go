package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ftahirops/xtriage/kb"
	"github.com/ftahirops/xtriage/model"
)

// memHistory is an in-memory HistoryStore.
type memHistory struct {
	entries []model.HistoryEntry
	addErr  error
}

func (h *memHistory) AddEntry(_ context.Context, e model.HistoryEntry) error {
	if h.addErr != nil {
		return h.addErr
	}
	h.entries = append(h.entries, e)
	return nil
}

func (h *memHistory) ModuleStats(_ context.Context, _ int) ([]model.ModuleStats, error) {
	counts := map[string]int{}
	var order []string
	for _, e := range h.entries {
		if e.TopSuspect == "" {
			continue
		}
		if counts[e.TopSuspect] == 0 {
			order = append(order, e.TopSuspect)
		}
		counts[e.TopSuspect]++
	}
	var out []model.ModuleStats
	for _, m := range order {
		out = append(out, model.ModuleStats{Module: m, AsTopSuspect: counts[m], TotalAppearances: counts[m], TotalCrashes: len(h.entries)})
	}
	return out, nil
}

func (h *memHistory) BucketStats(_ context.Context, key string) (model.BucketStats, error) {
	bs := model.BucketStats{BucketKey: key}
	seen := map[string]bool{}
	for _, e := range h.entries {
		if e.BucketKey != key {
			continue
		}
		if bs.Count == 0 || e.Timestamp.Before(bs.FirstSeen) {
			bs.FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(bs.LastSeen) {
			bs.LastSeen = e.Timestamp
		}
		bs.Count++
		if e.TopSuspect != "" && !seen[e.TopSuspect] {
			seen[e.TopSuspect] = true
			bs.Modules = append(bs.Modules, e.TopSuspect)
		}
	}
	return bs, nil
}

func (h *memHistory) UnknownStreak(_ context.Context, key string) (uint32, error) {
	var n uint32
	for i := len(h.entries) - 1; i >= 0; i-- {
		e := h.entries[i]
		if e.BucketKey != key {
			continue
		}
		if !e.UnknownFault {
			break
		}
		n++
	}
	return n, nil
}

type fakeSymbols map[uint64]string

func (f fakeSymbols) Resolve(_ string, off uint64) (string, bool) {
	name, ok := f[off]
	return name, ok
}

var quiet = slog.New(slog.DiscardHandler)

func testClock() func() time.Time {
	t := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func systemFaultIncident() *model.Incident {
	return &model.Incident{
		DumpFile:      `C:\dumps\crash_1.dmp`,
		Kind:          model.CaptureCrash,
		ExceptionCode: StatusAccessViolation,
		ExceptionAddr: ntdllBase + 0x10,
		Modules: []model.Module{
			{Filename: "SkyrimSE.exe", Base: exeBase, Size: 0x1000000},
			{Filename: "ntdll.dll", Base: ntdllBase, Size: 0x100000},
			{Filename: "BadMod.dll", Base: badBase, Size: 0x10000},
		},
		Frames: frames(ntdllBase+0x10, ntdllBase+0x20, ntdllBase+0x30, badBase+0x40, badBase+0x50),
	}
}

func evidenceIDs(d *model.Diagnosis) string {
	ids := make([]string, 0, len(d.Evidence))
	for _, e := range d.Evidence {
		ids = append(ids, e.ID)
	}
	return strings.Join(ids, ",")
}

func hasStep(d *model.Diagnosis, step model.Text) bool {
	for _, s := range d.Steps {
		if s == step {
			return true
		}
	}
	return false
}

func TestAnalyzeRepeatedBucketRaisesDisplayTier(t *testing.T) {
	ctx := context.Background()
	h := &memHistory{}
	a := NewAnalyzer(nil, WithHistory(h), WithLogger(quiet), WithClock(testClock()))

	first, err := a.Analyze(ctx, systemFaultIncident())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	d := first.Diagnosis
	if d.Fault.Module != "ntdll.dll" || !d.Fault.IsSystem {
		t.Errorf("Fault = %+v", d.Fault)
	}
	if top, _ := d.TopCandidate(); top.Module != "BadMod.dll" {
		t.Errorf("top candidate = %q", top.Module)
	}
	if d.Tier != model.TierMedium || d.DisplayTier != model.TierMedium {
		t.Errorf("tiers = %v/%v, want Medium/Medium", d.Tier, d.DisplayTier)
	}
	if d.HistoryCorrelation != nil {
		t.Error("first occurrence has a history correlation")
	}
	if d.Verdict != model.KeepDump {
		t.Errorf("Verdict = %v", d.Verdict)
	}
	if !hasStep(d, stepSystemDLL) {
		t.Error("system-DLL step missing")
	}
	if !strings.Contains(d.Summary.EN, "points to BadMod.dll") {
		t.Errorf("Summary = %q", d.Summary.EN)
	}
	if len(h.entries) != 1 || h.entries[0].DumpFile != "crash_1.dmp" || h.entries[0].TopSuspect != "BadMod.dll" {
		t.Errorf("history entries = %+v", h.entries)
	}

	second, err := a.Analyze(ctx, systemFaultIncident())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	d = second.Diagnosis
	if d.BucketKey != first.Diagnosis.BucketKey {
		t.Fatalf("bucket changed: %s vs %s", d.BucketKey, first.Diagnosis.BucketKey)
	}
	if d.HistoryCorrelation == nil || d.HistoryCorrelation.Count != 2 {
		t.Fatalf("HistoryCorrelation = %+v", d.HistoryCorrelation)
	}
	if d.Tier != model.TierMedium || d.DisplayTier != model.TierHigh {
		t.Errorf("tiers = %v/%v, want Medium/High", d.Tier, d.DisplayTier)
	}
	if ids := evidenceIDs(d); !strings.Contains(ids, EvHistoryBucket) || !strings.Contains(ids, EvHistoryModules) {
		t.Errorf("evidence = %s", ids)
	}
}

func TestAnalyzeUnknownFaultRecapture(t *testing.T) {
	ctx := context.Background()
	h := &memHistory{}
	a := NewAnalyzer(nil,
		WithHistory(h),
		WithLogger(quiet),
		WithRecapturePolicy(RecapturePolicy{Enabled: true, AutoAnalyze: true, UnknownThreshold: 2}))

	inc := func() *model.Incident {
		return &model.Incident{Kind: model.CaptureCrash, ExceptionCode: StatusAccessViolation, ExceptionAddr: 0x1234}
	}

	res, err := a.Analyze(ctx, inc())
	if err != nil {
		t.Fatal(err)
	}
	if res.Recapture.Recapture || res.UnknownStreak != 1 {
		t.Errorf("first result = %+v", res)
	}
	if d := res.Diagnosis; d.Tier != model.TierLow || !hasStep(d, stepFullDump) || !strings.Contains(evidenceIDs(d), EvFaultUnknown) {
		t.Errorf("diagnosis = tier %v, evidence %s", d.Tier, evidenceIDs(d))
	}
	if len(res.Diagnosis.Candidates) != 0 || res.Diagnosis.Candidates == nil {
		t.Error("candidates should be an empty list")
	}

	res, err = a.Analyze(ctx, inc())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Recapture.Recapture || res.Recapture.Threshold != 2 || res.UnknownStreak != 2 {
		t.Errorf("second result = %+v", res)
	}

	full := inc()
	full.DumpMode = model.DumpModeFull
	res, err = a.Analyze(ctx, full)
	if err != nil {
		t.Fatal(err)
	}
	if res.Recapture.Recapture {
		t.Error("a full dump asked for a recapture")
	}
}

func TestAnalyzeKnowledgeBase(t *testing.T) {
	ctx := context.Background()
	snap, err := kb.LoadDir(ctx, "../data", quiet)
	if err != nil {
		t.Fatal(err)
	}
	a := NewAnalyzer(kb.NewStore(snap), WithLogger(quiet))

	res, err := a.Analyze(ctx, &model.Incident{
		Kind:          model.CaptureCrash,
		ExceptionCode: StatusAccessViolation,
		ExceptionAddr: 0x7ff100000100,
		Modules: []model.Module{
			{Filename: "d3d11.dll", Path: `C:\Windows\System32\d3d11.dll`, Base: 0x7ff100000000, Size: 0x100000},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	d := res.Diagnosis
	if !d.SignatureMatched || d.Signature.ID != "D3D11_DEVICE_REMOVED" {
		t.Fatalf("Signature = %+v", d.Signature)
	}
	if !strings.HasPrefix(d.Summary.EN, "Known crash pattern D3D11_DEVICE_REMOVED: ") {
		t.Errorf("Summary = %q", d.Summary.EN)
	}
	if len(d.Steps) == 0 || d.Steps[0].EN != "Update or clean-install the GPU driver." {
		t.Errorf("first step = %+v", d.Steps)
	}
	if d.Guide == nil || d.Guide.ID != "access-violation" {
		t.Errorf("Guide = %+v", d.Guide)
	}
	if len(d.Evidence) == 0 || d.Evidence[0].ID != EvSignature {
		t.Errorf("evidence = %s", evidenceIDs(d))
	}
}

func TestAnalyzeManualSnapshot(t *testing.T) {
	a := NewAnalyzer(nil, WithLogger(quiet))
	res, err := a.Analyze(context.Background(), &model.Incident{
		Kind: model.CaptureManual,
		Hang: &model.HangContext{SecondsSinceHeartbeat: 1.5, ThresholdSec: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	d := res.Diagnosis
	if d.Tier != model.TierHigh || d.Verdict != model.KeepDump {
		t.Errorf("tier/verdict = %v/%v", d.Tier, d.Verdict)
	}
	if !strings.Contains(d.Summary.EN, "manual snapshot") {
		t.Errorf("Summary = %q", d.Summary.EN)
	}
	if hasStep(d, stepFullDump) {
		t.Error("snapshot should not ask for a full dump")
	}
	if ids := evidenceIDs(d); !strings.Contains(ids, EvSnapshot) || !strings.Contains(ids, EvWaitChain) {
		t.Errorf("evidence = %s", ids)
	}
	if d.ID == "" {
		t.Error("incident ID not assigned")
	}
}

func TestAnalyzeResolvesGameFunction(t *testing.T) {
	a := NewAnalyzer(nil, WithLogger(quiet), WithSymbols(fakeSymbols{0x1234: "Actor::Update"}))
	res, err := a.Analyze(context.Background(), &model.Incident{
		Kind:          model.CaptureCrash,
		ExceptionCode: StatusAccessViolation,
		ExceptionAddr: exeBase + 0x1234,
		GameVersion:   "1.6.1170",
		Modules:       []model.Module{{Filename: "SkyrimSE.exe", Base: exeBase, Size: 0x1000000}},
	})
	if err != nil {
		t.Fatal(err)
	}
	d := res.Diagnosis
	if d.ResolvedFunc != "Actor::Update" {
		t.Errorf("ResolvedFunc = %q", d.ResolvedFunc)
	}
	if !strings.Contains(evidenceIDs(d), EvGameFunction) {
		t.Errorf("evidence = %s", evidenceIDs(d))
	}
	if d.Tier != model.TierMedium {
		t.Errorf("Tier = %v", d.Tier)
	}
}

func TestAnalyzeHistoryFailureDegrades(t *testing.T) {
	h := &memHistory{addErr: errors.New("disk full")}
	a := NewAnalyzer(nil, WithHistory(h), WithLogger(quiet))
	res, err := a.Analyze(context.Background(), systemFaultIncident())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Diagnosis.HistoryCorrelation != nil || res.UnknownStreak != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalyzer(nil, WithLogger(quiet)).Analyze(ctx, systemFaultIncident())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Analyze() error = %v, want context.Canceled", err)
	}
}

func TestAnalyzeCancelledLeavesNoHistory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := &memHistory{}
	_, err := NewAnalyzer(nil, WithLogger(quiet), WithHistory(h)).Analyze(ctx, systemFaultIncident())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Analyze() error = %v, want context.Canceled", err)
	}
	if len(h.entries) != 0 {
		t.Errorf("history has %d entries after a cancelled analysis, want 0", len(h.entries))
	}
}

func TestAnalyzeSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	a := NewAnalyzer(nil, WithLogger(quiet), WithHistory(&memHistory{}), WithTracer(tp.Tracer("test")))
	if _, err := a.Analyze(context.Background(), systemFaultIncident()); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	got := map[string]bool{}
	var root sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		got[s.Name()] = true
		if s.Name() == "engine.Analyze" {
			root = s
		}
	}
	for _, name := range []string{"engine.Analyze", "engine.Score", "engine.MatchKnowledgeBase", "engine.History"} {
		if !got[name] {
			t.Errorf("span %q not recorded; got %v", name, got)
		}
	}
	if root == nil {
		t.Fatal("no root span")
	}
	for _, s := range sr.Ended() {
		if s.Name() != "engine.Analyze" && s.Parent().SpanID() != root.SpanContext().SpanID() {
			t.Errorf("span %q is not a child of engine.Analyze", s.Name())
		}
	}
}

func TestSynthesizeNilIncident(t *testing.T) {
	d := Synthesize(SynthInput{})
	if d == nil || d.Tier != model.TierLow || d.Candidates == nil {
		t.Fatalf("Synthesize() = %+v", d)
	}
}
