package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ftahirops/xtriage/model"
)

// recentEvents bounds the decision history kept in MonitorStatus.
const recentEvents = 16

// AnalyzeFunc runs an out-of-band analysis of a kept dump.
type AnalyzeFunc func(ctx context.Context, dumpPath string) error

// MonitorConfig wires the monitor loop.
type MonitorConfig struct {
	Thresholds                HangThresholds
	SuppressWhenNotForeground bool
	ForegroundGraceSec        uint32

	AutoAnalyze       bool
	AnalysisRequired  bool
	AnalysisTimeout   time.Duration
	Analyze           AnalyzeFunc
	DeleteBenignDumps bool

	Viewer   *DeferredViewer
	EventLog *EventLogWriter
	Metrics  *Metrics
	Logger   *slog.Logger

	// OnHang is called once per hang episode that survives suppression.
	OnHang func(model.HangDetection)
	// OnUpdate receives a status copy after every record.
	OnUpdate func(MonitorStatus)

	now func() time.Time
}

// MonitorStatus is a point-in-time view of the monitor for display.
type MonitorStatus struct {
	Ticks      int                    `json:"ticks"`
	Last       *model.HeartbeatSample `json:"last,omitempty"`
	Detection  model.HangDetection    `json:"detection"`
	Decision   model.HangDecision     `json:"decision"`
	HangActive bool                   `json:"hang_active"`
	Crash      *model.CrashEventInfo  `json:"crash,omitempty"`
	DumpPath   string                 `json:"dump_path,omitempty"`
	Verdict    *model.FilterVerdict   `json:"verdict,omitempty"`
	Exited     bool                   `json:"exited"`
	Events     []model.MonitorEvent   `json:"events,omitempty"`
}

// Monitor turns a telemetry stream into hang captures and crash verdicts.
type Monitor struct {
	cfg     MonitorConfig
	hang    HangSuppressor
	pending PendingAnalysis

	mu     sync.Mutex
	status MonitorStatus
}

// NewMonitor creates a monitor. Zero thresholds fall back to the defaults.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Thresholds == (HangThresholds{}) {
		cfg.Thresholds = DefaultHangThresholds()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Viewer == nil {
		cfg.Viewer = NewDeferredViewer(nil)
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Monitor{cfg: cfg}
}

// Run consumes src until the process exits, the stream ends or ctx is
// cancelled. A pending analysis is awaited before returning.
func (m *Monitor) Run(ctx context.Context, src Source) error {
	m.cfg.Logger.Info("monitor started",
		"threshold_in_game", m.cfg.Thresholds.InGameSec,
		"threshold_menu", m.cfg.Thresholds.InMenuSec,
		"threshold_loading", m.cfg.Thresholds.LoadingSec)

	defer func() {
		if err := m.pending.Wait(); err != nil {
			m.cfg.Logger.Warn("analysis failed", "err", err)
		}
	}()

	for {
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			m.cfg.Logger.Info("telemetry stream ended")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				m.pending.Cancel()
				return ctx.Err()
			}
			return err
		}
		if m.Step(ctx, rec) {
			return nil
		}
	}
}

// Step processes one record and reports whether the monitored process has exited.
func (m *Monitor) Step(ctx context.Context, rec model.TelemetryRecord) bool {
	m.cfg.Metrics.observeTick()
	var done bool
	switch rec.Kind {
	case model.TelemetryHeartbeat:
		if rec.Heartbeat != nil {
			m.heartbeat(*rec.Heartbeat)
		}
	case model.TelemetryCrash:
		if rec.Crash != nil {
			m.crash(*rec.Crash)
		}
	case model.TelemetryExit:
		if rec.Exit != nil {
			m.exit(ctx, *rec.Exit)
			done = true
		}
	}

	m.mu.Lock()
	m.status.Ticks++
	st := m.snapshotLocked()
	m.mu.Unlock()
	if m.cfg.OnUpdate != nil {
		m.cfg.OnUpdate(st)
	}
	return done
}

// Status returns a copy of the current monitor state.
func (m *Monitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() MonitorStatus {
	st := m.status
	st.Events = append([]model.MonitorEvent(nil), m.status.Events...)
	return st
}

func (m *Monitor) heartbeat(s model.HeartbeatSample) {
	det := DetectHang(s, m.cfg.Thresholds)
	prev := m.hang.State()
	d := m.hang.Evaluate(HangInput{
		IsHang:                    det.IsHang,
		IsForeground:              s.IsForeground,
		IsLoading:                 det.IsLoading,
		IsWindowResponsive:        s.IsWindowResponsive,
		SuppressWhenNotForeground: m.cfg.SuppressWhenNotForeground,
		NowTicks:                  s.NowTicks,
		HeartbeatTicks:            s.HeartbeatTicks,
		TickFrequency:             s.TickFrequency,
		ForegroundGraceSec:        m.cfg.ForegroundGraceSec,
	})
	m.cfg.Metrics.observeHang(det, d)

	m.mu.Lock()
	prevDecision := m.status.Decision
	active := m.status.HangActive
	m.status.Last = &s
	m.status.Detection = det
	m.status.Decision = d
	m.mu.Unlock()

	switch {
	case !det.IsHang:
		if active {
			m.record(model.MonitorEvent{Kind: model.EventHangCleared, Detection: &det})
			m.setHangActive(false)
		}
	case d.Suppress:
		if !prevDecision.Suppress || prevDecision.Reason != d.Reason || prev.SuppressedHeartbeatTicks == 0 {
			m.cfg.Logger.Debug("hang suppressed", "reason", d.Reason.String(), "seconds", det.SecondsSinceHeartbeat)
			m.record(model.MonitorEvent{Kind: model.EventHangSuppressed, Detection: &det, Decision: &d})
		}
	case !active:
		m.cfg.Logger.Warn("hang detected",
			"seconds_since_heartbeat", det.SecondsSinceHeartbeat,
			"threshold", det.ThresholdSec,
			"loading", det.IsLoading)
		m.record(model.MonitorEvent{Kind: model.EventHangCapture, Detection: &det, Decision: &d})
		m.setHangActive(true)
		if m.cfg.OnHang != nil {
			m.cfg.OnHang(det)
		}
	}
}

func (m *Monitor) crash(sig model.RawCrashSignal) {
	ev := NewCrashEvent(sig.ExceptionCode, sig.ExceptionAddr, sig.FaultingTID, sig.StateFlags)

	m.mu.Lock()
	m.status.Crash = &ev
	m.status.DumpPath = sig.DumpPath
	m.mu.Unlock()

	m.cfg.Logger.Warn("crash signalled",
		"exception", ExceptionName(ev.ExceptionCode),
		"strong", ev.IsStrong,
		"in_menu", ev.InMenu,
		"dump", sig.DumpPath)
	m.record(model.MonitorEvent{Kind: model.EventCrash, Crash: &ev, DumpPath: sig.DumpPath})

	if sig.DumpPath == "" {
		return
	}
	if err := m.cfg.Viewer.Queue(sig.DumpPath); err != nil {
		m.cfg.Metrics.observeViewer("rejected")
		m.cfg.Logger.Info("viewer slot busy", "pending", m.cfg.Viewer.Pending(), "dump", sig.DumpPath)
		m.record(model.MonitorEvent{Kind: model.EventViewer, DumpPath: sig.DumpPath, Message: err.Error()})
		return
	}
	m.cfg.Metrics.observeViewer("queued")
}

func (m *Monitor) exit(ctx context.Context, e model.ProcessExit) {
	code := e.ExitCode
	m.mu.Lock()
	m.status.Exited = true
	crash, dump := m.status.Crash, m.status.DumpPath
	m.mu.Unlock()

	m.record(model.MonitorEvent{Kind: model.EventExit, ExitCode: &code})
	if crash == nil {
		m.cfg.Logger.Info("process exited", "exit_code", code)
		m.cfg.Viewer.Discard()
		return
	}

	v := Classify(code, *crash)
	m.cfg.Metrics.observeVerdict(v)
	m.mu.Lock()
	m.status.Verdict = &v
	m.mu.Unlock()
	m.cfg.Logger.Info("crash classified", "exit_code", code, "verdict", v.String(), "dump", dump)
	m.record(model.MonitorEvent{Kind: model.EventVerdict, Crash: crash, Verdict: &v, ExitCode: &code, DumpPath: dump})

	if v == model.DeleteBenign {
		m.cfg.Viewer.Discard()
		if m.cfg.DeleteBenignDumps && dump != "" {
			if err := os.Remove(dump); err != nil && !os.IsNotExist(err) {
				m.cfg.Logger.Warn("delete benign dump", "dump", dump, "err", err)
			}
		}
		return
	}

	_, opened, err := m.cfg.Viewer.Flush(ctx)
	switch {
	case err != nil:
		m.cfg.Metrics.observeViewer("failed")
		m.cfg.Logger.Warn("viewer launch failed", "dump", dump, "err", err)
		m.record(model.MonitorEvent{Kind: model.EventViewer, DumpPath: dump, Message: err.Error()})
	case opened:
		m.cfg.Metrics.observeViewer("opened")
		m.record(model.MonitorEvent{Kind: model.EventViewer, DumpPath: dump, Message: "opened"})
	}

	if dump == "" || m.cfg.Analyze == nil {
		return
	}
	if !ShouldRunHeadless(m.cfg.AutoAnalyze, opened, m.cfg.AnalysisRequired) {
		return
	}
	m.record(model.MonitorEvent{Kind: model.EventAnalysis, DumpPath: dump, Message: "started"})
	analyze := m.cfg.Analyze
	m.pending.Start(ctx, dump, m.cfg.AnalysisTimeout, func(actx context.Context) error {
		return analyze(actx, dump)
	})
}

// PendingAnalysis exposes the in-flight out-of-band analysis.
func (m *Monitor) PendingAnalysis() *PendingAnalysis { return &m.pending }

func (m *Monitor) setHangActive(v bool) {
	m.mu.Lock()
	m.status.HangActive = v
	m.mu.Unlock()
}

func (m *Monitor) record(e model.MonitorEvent) {
	e.Time = m.cfg.now().UTC()
	m.mu.Lock()
	m.status.Events = append(m.status.Events, e)
	if n := len(m.status.Events); n > recentEvents {
		m.status.Events = m.status.Events[n-recentEvents:]
	}
	m.mu.Unlock()
	if err := m.cfg.EventLog.Write(e); err != nil {
		m.cfg.Logger.Warn("event log write failed", "path", m.cfg.EventLog.Path(), "err", err)
	}
}
