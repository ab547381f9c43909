package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"ahrsmon/pkg/ahrs"
	"ahrsmon/pkg/engine"
	"ahrsmon/pkg/pipeline"
)

const (
	inspectorRefresh = 500 * time.Millisecond
	recentEvents     = 12
)

type statsTickMsg time.Time

type eventMsg engine.Event

type inspector struct {
	ingester  *pipeline.Ingester
	estimator *ahrs.Estimator
	events    <-chan engine.Event

	snapshot pipeline.Snapshot
	recent   []string
}

func runInspector(ctx context.Context, stderr io.Writer, ingester *pipeline.Ingester, estimator *ahrs.Estimator, hub *engine.Hub) int {
	m := inspector{
		ingester:  ingester,
		estimator: estimator,
		events:    hub.SubscribeWithBuffer(64),
	}

	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintln(stderr, "tui:", err)
		return 1
	}
	return 0
}

func (m inspector) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitEvent())
}

func (m inspector) tick() tea.Cmd {
	return tea.Tick(inspectorRefresh, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func (m inspector) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statsTickMsg:
		m.snapshot = m.ingester.Stats()
		return m, m.tick()
	case eventMsg:
		m.recent = append(m.recent, formatEvent(engine.Event(msg)))
		if len(m.recent) > recentEvents {
			m.recent = m.recent[len(m.recent)-recentEvents:]
		}
		return m, m.waitEvent()
	}
	return m, nil
}

func (m inspector) View() string {
	var b strings.Builder

	s := m.snapshot
	fmt.Fprintf(&b, "ahrsmond inspector  (q to quit)\n\n")
	fmt.Fprintf(&b, "  frames    total=%d accepted=%d rejected=%d gaps=%d pps=%d\n",
		s.Total, s.Accepted, s.RejectedTotal(), s.Gaps, s.PPS)

	if len(s.Rejected) > 0 {
		reasons := make([]string, 0, len(s.Rejected))
		for r := range s.Rejected {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		fmt.Fprintf(&b, "  rejected ")
		for _, r := range reasons {
			fmt.Fprintf(&b, " %s=%d", r, s.Rejected[engine.Reason(r)])
		}
		fmt.Fprintln(&b)
	}

	roll, pitch, yaw := m.estimator.Euler()
	fmt.Fprintf(&b, "  attitude  roll=%+7.2f° pitch=%+7.2f° yaw=%+7.2f°\n\n",
		deg(roll), deg(pitch), deg(yaw))

	fmt.Fprintln(&b, "  recent:")
	for _, line := range m.recent {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	return b.String()
}

func formatEvent(ev engine.Event) string {
	switch {
	case ev.Sample != nil:
		s := ev.Sample
		mark := " "
		if s.Gap {
			mark = "G"
		}
		return fmt.Sprintf("%s %-14s seq=%-8d dt=%.4fs %s",
			mark, s.Frame.Header.Type, s.Frame.Header.Sequence, s.Dt, s.Source)
	case ev.Rejection != nil:
		r := ev.Rejection
		return fmt.Sprintf("! %-14s %s", r.Reason, r.Source)
	}
	return ""
}

func deg(rad float64) float64 {
	return rad * 180 / math.Pi
}
