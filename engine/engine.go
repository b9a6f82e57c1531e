package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ftahirops/xtriage/kb"
	"github.com/ftahirops/xtriage/model"
)

// moduleStatsWindow is how many recent history entries module stats cover.
const moduleStatsWindow = 20

// HistoryStore is the persistent incident history. AddEntry is the only writer.
type HistoryStore interface {
	AddEntry(ctx context.Context, e model.HistoryEntry) error
	ModuleStats(ctx context.Context, lastN int) ([]model.ModuleStats, error)
	BucketStats(ctx context.Context, bucketKey string) (model.BucketStats, error)
	UnknownStreak(ctx context.Context, bucketKey string) (uint32, error)
}

// SymbolResolver maps game-executable offsets to function names.
type SymbolResolver interface {
	Resolve(gameVersion string, offset uint64) (string, bool)
}

// RecapturePolicy is the configured part of the recapture decision.
type RecapturePolicy struct {
	Enabled          bool
	AutoAnalyze      bool
	UnknownThreshold uint32
}

// Analyzer runs one incident through scoring, knowledge-base matching,
// history correlation and synthesis.
type Analyzer struct {
	kb        *kb.Store
	history   HistoryStore
	symbols   SymbolResolver
	hooks     []string
	recapture RecapturePolicy
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	now       func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithHistory persists outcomes and enables correlation.
func WithHistory(h HistoryStore) AnalyzerOption { return func(a *Analyzer) { a.history = h } }

// WithSymbols enables game-function resolution.
func WithSymbols(r SymbolResolver) AnalyzerOption { return func(a *Analyzer) { a.symbols = r } }

// WithExtraHookFrameworks adds configured DLL names to the knowledge-base list.
func WithExtraHookFrameworks(names ...string) AnalyzerOption {
	return func(a *Analyzer) { a.hooks = append(a.hooks, names...) }
}

// WithRecapturePolicy sets the full-dump recapture policy.
func WithRecapturePolicy(p RecapturePolicy) AnalyzerOption {
	return func(a *Analyzer) { a.recapture = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracer sets the tracer used for per-stage spans.
func WithTracer(t trace.Tracer) AnalyzerOption {
	return func(a *Analyzer) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithMetrics records analysis metrics.
func WithMetrics(m *Metrics) AnalyzerOption { return func(a *Analyzer) { a.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) AnalyzerOption { return func(a *Analyzer) { a.now = now } }

// NewAnalyzer creates an analyzer reading knowledge bases from store.
// A nil store runs with every knowledge base disabled.
func NewAnalyzer(store *kb.Store, opts ...AnalyzerOption) *Analyzer {
	if store == nil {
		store = kb.NewStore(nil)
	}
	a := &Analyzer{
		kb:     store,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/ftahirops/xtriage/engine"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is a diagnosis plus the follow-up decisions derived from it.
type Result struct {
	Diagnosis     *model.Diagnosis  `json:"diagnosis"`
	Recapture     RecaptureDecision `json:"recapture"`
	UnknownStreak uint32            `json:"unknown_streak"`
}

// Analyze runs the whole pipeline for inc. It fails only when ctx is done;
// knowledge-base and history problems degrade the result instead.
func (a *Analyzer) Analyze(ctx context.Context, inc *model.Incident) (*Result, error) {
	start := a.now()
	ctx, span := a.tracer.Start(ctx, "engine.Analyze")
	defer span.End()

	if inc == nil {
		inc = &model.Incident{}
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("incident.id", inc.ID),
		attribute.String("incident.kind", string(inc.Kind)),
		attribute.Int64("exception.code", int64(inc.ExceptionCode)),
	)

	snap := a.kb.Current()
	classifier := NewModuleClassifier(snap.HookFrameworks.With(a.hooks...))

	// Scoring.
	_, scoreSpan := a.tracer.Start(ctx, "engine.Score")
	mods := classifier.Classify(inc.Modules)
	fault := ResolveFault(mods, inc.ExceptionAddr)
	in := ScoreInput{
		Modules:      mods,
		Frames:       inc.Frames,
		StackBytes:   inc.StackBytes,
		StackBase:    inc.StackBase,
		StackPointer: inc.StackPointer,
	}
	ev := SelectEvidence(StackWalk{}.Score(in), StackScan{}.Score(in))
	ev = Corroborate(ev, inc.CrashLoggerModules, inc.CrashLoggerCppModule, classifier)
	frames := DisplayFrames(mods, inc.Frames)
	scoreSpan.SetAttributes(
		attribute.String("candidates.source", string(ev.Source)),
		attribute.Int("candidates.count", len(ev.Candidates)),
		attribute.String("candidates.tier", ev.Tier.String()),
	)
	scoreSpan.End()

	candMods := make([]string, 0, len(ev.Candidates))
	for _, c := range ev.Candidates {
		candMods = append(candMods, c.Module)
	}
	bucket := BucketKey(inc.ExceptionCode, fault.Module, BucketFrames(frames, candMods, fault.PlusOffset()))

	// Knowledge-base matching.
	_, kbSpan := a.tracer.Start(ctx, "engine.MatchKnowledgeBase")
	names := ModuleNames(mods)
	callstack := make([]string, 0, len(frames)+len(inc.CrashLoggerModules)+len(candMods))
	callstack = append(callstack, frames...)
	callstack = append(callstack, inc.CrashLoggerModules...)
	callstack = append(callstack, candMods...)
	sig, _ := snap.Signatures.Match(kb.SignatureInput{
		ExceptionCode:       inc.ExceptionCode,
		ExceptionAddr:       inc.ExceptionAddr,
		FaultModule:         fault.Module,
		FaultOffset:         fault.Offset,
		FaultModuleIsSystem: fault.IsSystem,
		CallstackModules:    callstack,
	})

	gameVersion := inc.GameVersion
	if gameVersion == "" && inc.PluginScan != nil {
		gameVersion = inc.PluginScan.GameExeVersion
	}
	rules := snap.PluginRules.Evaluate(kb.PluginContext{
		Scan:           inc.PluginScan,
		LoadedModules:  names,
		ModuleVersions: ModuleVersions(mods),
		GameVersion:    gameVersion,
	})
	rules = append(rules, snap.Graphics.Diagnose(names, fault.Module)...)
	graphics := snap.Graphics.DetectEnvironment(names)
	missing := kb.MissingMasters(inc.PluginScan)
	kbSpan.SetAttributes(
		attribute.Bool("signature.matched", sig != nil),
		attribute.Int("rules.fired", len(rules)),
	)
	kbSpan.End()

	var resolved string
	if fault.IsGameExe && a.symbols != nil {
		resolved, _ = a.symbols.Resolve(gameVersion, fault.Offset)
	}

	// History.
	var (
		correlation *model.HistoryCorrelation
		modStats    []model.ModuleStats
		streak      uint32
	)
	if err := ctx.Err(); err != nil {
		return nil, a.cancelled(span, err)
	}
	if a.history != nil {
		hctx, hSpan := a.tracer.Start(ctx, "engine.History")
		entry := model.HistoryEntry{
			Timestamp:    a.now(),
			DumpFile:     dumpName(inc.DumpFile),
			BucketKey:    bucket,
			UnknownFault: !fault.Known(),
		}
		if top, ok := ev.Top(); ok {
			entry.TopSuspect = top.Module
			entry.Confidence = top.Tier
		}
		entry.AllSuspects = candMods
		if sig != nil {
			entry.SignatureID = sig.ID
		}
		correlation, modStats, streak = a.recordHistory(hctx, entry)
		hSpan.End()
	}

	guide, _ := snap.Guides.Select(kb.GuideInput{
		ExceptionCode: inc.ExceptionCode,
		SignatureID:   signatureID(sig),
		IsHang:        inc.IsHangLike(),
		IsLoading:     inc.StateFlags&model.StateLoading != 0,
		IsSnapshot:    inc.IsSnapshotLike(),
	})

	d := Synthesize(SynthInput{
		Incident:       inc,
		Fault:          fault,
		Evidence:       ev,
		Frames:         frames,
		BucketKey:      bucket,
		Verdict:        incidentVerdict(inc),
		Signature:      sig,
		Rules:          rules,
		Graphics:       graphics,
		MissingMasters: missing,
		ResolvedFunc:   resolved,
		Correlation:    correlation,
		ModuleStats:    modStats,
		Guide:          guide,
		Hooks:          classifier,
	})
	d.ID = inc.ID
	d.CreatedAt = a.now()

	res := &Result{
		Diagnosis:     d,
		UnknownStreak: streak,
		Recapture: DecideRecapture(RecaptureInput{
			Enabled:          a.recapture.Enabled,
			AutoAnalyze:      a.recapture.AutoAnalyze,
			UnknownFault:     !fault.Known(),
			UnknownStreak:    streak,
			UnknownThreshold: a.recapture.UnknownThreshold,
			DumpMode:         inc.DumpMode,
		}),
	}

	span.SetAttributes(
		attribute.String("diagnosis.bucket", bucket),
		attribute.String("diagnosis.tier", d.Tier.String()),
	)
	a.metrics.observeAnalysis(d, a.now().Sub(start))
	a.logger.Info("incident analyzed",
		"incident", inc.ID,
		"bucket", bucket,
		"tier", d.Tier.String(),
		"display_tier", d.DisplayTier.String(),
		"signature", signatureID(sig),
		"rules", len(rules),
		"recapture", res.Recapture.Recapture,
	)

	if err := ctx.Err(); err != nil {
		return nil, a.cancelled(span, err)
	}
	return res, nil
}

func (a *Analyzer) cancelled(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "analysis cancelled")
	return err
}

// recordHistory appends the entry and reads back the correlation data.
// Failures are logged and leave the corresponding output empty.
func (a *Analyzer) recordHistory(ctx context.Context, e model.HistoryEntry) (*model.HistoryCorrelation, []model.ModuleStats, uint32) {
	if err := a.history.AddEntry(ctx, e); err != nil {
		a.logger.Warn("history append failed", "bucket", e.BucketKey, "err", err)
		return nil, nil, 0
	}

	stats, err := a.history.ModuleStats(ctx, moduleStatsWindow)
	if err != nil {
		a.logger.Warn("history module stats failed", "err", err)
	}

	var hc *model.HistoryCorrelation
	bs, err := a.history.BucketStats(ctx, e.BucketKey)
	switch {
	case err != nil:
		a.logger.Warn("history bucket stats failed", "bucket", e.BucketKey, "err", err)
	case bs.Count > 1:
		hc = &model.HistoryCorrelation{
			BucketKey: bs.BucketKey,
			Count:     bs.Count,
			FirstSeen: bs.FirstSeen,
			LastSeen:  bs.LastSeen,
			Modules:   bs.Modules,
		}
	}

	streak, err := a.history.UnknownStreak(ctx, e.BucketKey)
	if err != nil {
		a.logger.Warn("history unknown streak failed", "bucket", e.BucketKey, "err", err)
	}
	return hc, stats, streak
}

// incidentVerdict classifies crash captures. Hang, manual and snapshot
// captures were requested deliberately and are always kept.
func incidentVerdict(inc *model.Incident) model.FilterVerdict {
	if inc.Kind != model.CaptureCrash && inc.Kind != "" {
		return model.KeepDump
	}
	ev := NewCrashEvent(inc.ExceptionCode, inc.ExceptionAddr, inc.FaultingTID, inc.StateFlags)
	return Classify(inc.ExitCode, ev)
}

// dumpName strips the directory from Windows and slash-separated dump paths.
func dumpName(p string) string {
	if p == "" {
		return ""
	}
	return baseName(p)
}

func signatureID(sig *model.SignatureMatch) string {
	if sig == nil {
		return ""
	}
	return sig.ID
}
