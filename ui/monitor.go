package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ftahirops/xtriage/engine"
	"github.com/ftahirops/xtriage/model"
)

type statusMsg engine.MonitorStatus

type doneMsg struct{ err error }

type tickMsg time.Time

// MonitorModel is the bubbletea model of the live monitor view.
type MonitorModel struct {
	lang    model.Language
	status  engine.MonitorStatus
	width   int
	height  int
	started time.Time
	now     time.Time
	done    bool
	err     error
}

// NewMonitorModel creates the view in the given language.
func NewMonitorModel(lang model.Language) MonitorModel {
	now := time.Now()
	return MonitorModel{lang: lang, width: 80, started: now, now: now}
}

func (m MonitorModel) Init() tea.Cmd {
	return tick(time.Second)
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "l":
			if m.lang == model.English {
				m.lang = model.Korean
			} else {
				m.lang = model.English
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case statusMsg:
		m.status = engine.MonitorStatus(msg)
	case doneMsg:
		m.done = true
		m.err = msg.err
	case tickMsg:
		m.now = time.Time(msg)
		return m, tick(time.Second)
	}
	return m, nil
}

func (m MonitorModel) View() string {
	innerW := pageInnerW(m.width)
	st := m.status

	state := okStyle.Render("running")
	switch {
	case m.done && m.err != nil:
		state = critStyle.Render("stopped: " + m.err.Error())
	case m.done || st.Exited:
		state = dimStyle.Render("process exited")
	case st.HangActive:
		state = critStyle.Render("HANG")
	case st.Decision.Suppress:
		state = warnStyle.Render("suppressed (" + st.Decision.Reason.String() + ")")
	}

	det := st.Detection
	var ratio float64
	if det.ThresholdSec > 0 {
		ratio = det.SecondsSinceHeartbeat / float64(det.ThresholdSec)
	}
	mode := "in game"
	if det.IsLoading {
		mode = "loading"
	} else if st.Last != nil && st.Last.InMenu() {
		mode = "menu"
	}

	details := []kv{
		{"state", state},
		{"heartbeat", fmt.Sprintf("%s %.1fs / %ds", bar(ratio, 20), det.SecondsSinceHeartbeat, det.ThresholdSec)},
		{"mode", mode},
		{"ticks", fmt.Sprintf("%d", st.Ticks)},
		{"uptime", m.now.Sub(m.started).Truncate(time.Second).String()},
	}
	if st.Crash != nil {
		details = append(details, kv{"crash", critStyle.Render(fmt.Sprintf("%s at 0x%X", engine.ExceptionName(st.Crash.ExceptionCode), st.Crash.ExceptionAddr))})
	}
	if st.Verdict != nil {
		details = append(details, kv{"verdict", verdictStyle(*st.Verdict).Render(st.Verdict.String())})
	}

	var sb strings.Builder
	sb.WriteString(boxSection(titleStyle.Render("xtriage monitor"), kvLines(details), innerW))

	events := make([]string, 0, len(st.Events))
	for i := len(st.Events) - 1; i >= 0; i-- {
		e := st.Events[i]
		line := dimStyle.Render(e.Time.Local().Format("15:04:05")) + " " + eventStyle(e.Kind).Render(string(e.Kind))
		if e.DumpPath != "" {
			line += " " + e.DumpPath
		}
		if e.Message != "" {
			line += dimStyle.Render(" " + e.Message)
		}
		events = append(events, line)
	}
	if len(events) == 0 {
		events = append(events, dimStyle.Render("(no events)"))
	}
	sb.WriteString(boxSection(hdrEvidence.In(m.lang), events, innerW))
	sb.WriteString(helpStyle.Render(" q quit  l language") + "\n")
	return sb.String()
}

func eventStyle(k model.MonitorEventKind) lipgloss.Style {
	switch k {
	case model.EventHangCapture, model.EventCrash:
		return critStyle
	case model.EventHangSuppressed, model.EventViewer:
		return warnStyle
	case model.EventVerdict, model.EventAnalysis:
		return orangeStyle
	}
	return okStyle
}

// RunMonitor shows the live view while run drives the monitor. run receives
// a callback to publish status; it is cancelled when the user quits.
func RunMonitor(ctx context.Context, lang model.Language, run func(ctx context.Context, publish func(engine.MonitorStatus)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewMonitorModel(lang), tea.WithAltScreen(), tea.WithContext(ctx))
	errc := make(chan error, 1)
	go func() {
		err := run(ctx, func(st engine.MonitorStatus) { p.Send(statusMsg(st)) })
		errc <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	cancel()
	err := <-errc
	if err == context.Canceled {
		return nil
	}
	return err
}
