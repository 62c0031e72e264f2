package viz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/simbridge/internal/cache"
	"github.com/san-kum/simbridge/internal/observe"
	"github.com/san-kum/simbridge/internal/state"
)

const (
	historyCapacity = 300
	tickInterval    = 100 * time.Millisecond

	// DefaultStaleAfter is how old the last update may be before the feed
	// is shown as stale.
	DefaultStaleAfter = 2 * time.Second
)

// Source is the read side of the state cache the monitor polls.
type Source interface {
	Snapshot() (cache.Snapshot, bool)
}

type TickMsg time.Time

type MonitorOption func(*Model)

// WithStatus reports the connection status shown in the header.
func WithStatus(fn func() string) MonitorOption {
	return func(m *Model) { m.status = fn }
}

func WithTheme(name string) MonitorOption {
	return func(m *Model) { m.theme = GetTheme(name) }
}

func WithStaleAfter(d time.Duration) MonitorOption {
	return func(m *Model) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

// Model is a live view of the telemetry feed: the projected observation,
// the update rate and a plot of one selected slot.
type Model struct {
	src        Source
	projector  observe.Projector
	status     func() string
	theme      Theme
	st         styles
	staleAfter time.Duration

	labels  []string
	derived map[int]bool

	snap     cache.Snapshot
	have     bool
	obs      state.Vector
	history  [][]float64
	selected int

	lastGen  uint64
	lastTick time.Time
	rate     float64

	paused   bool
	showHelp bool
}

func NewMonitor(src Source, projector observe.Projector, opts ...MonitorOption) Model {
	m := Model{
		src:        src,
		projector:  projector,
		theme:      ThemeCockpit,
		staleAfter: DefaultStaleAfter,
		labels:     observe.Labels(projector),
		derived:    make(map[int]bool),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.st = newStyles(m.theme)
	for _, i := range projector.Spec().DerivedSlots() {
		m.derived[i] = true
	}
	m.history = make([][]float64, len(m.labels))
	return m
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "tab", "right", "l":
			m.selectSlot(1)
		case "shift+tab", "left", "h":
			m.selectSlot(-1)
		case "c":
			for i := range m.history {
				m.history[i] = m.history[i][:0]
			}
		case "t":
			m.theme = nextTheme(m.theme)
			m.st = newStyles(m.theme)
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		m.poll(time.Time(msg))
		return m, tick()
	}
	return m, nil
}

func (m *Model) selectSlot(dir int) {
	n := len(m.labels)
	if n == 0 {
		return
	}
	m.selected = ((m.selected+dir)%n + n) % n
}

func (m *Model) poll(now time.Time) {
	if m.paused {
		return
	}
	snap, ok := m.src.Snapshot()

	if !m.lastTick.IsZero() && snap.Generation >= m.lastGen {
		if dt := now.Sub(m.lastTick).Seconds(); dt > 0 {
			inst := float64(snap.Generation-m.lastGen) / dt
			m.rate = 0.7*m.rate + 0.3*inst
		}
	}
	m.lastGen, m.lastTick = snap.Generation, now

	if !ok || (m.have && snap.Generation == m.snap.Generation) {
		return
	}
	m.snap, m.have = snap, true
	m.obs = m.projector.Project(docReader(snap.Doc))
	for i, v := range m.obs {
		h := append(m.history[i], v)
		if len(h) > historyCapacity {
			h = h[len(h)-historyCapacity:]
		}
		m.history[i] = h
	}
}

func (m Model) Generation() uint64       { return m.snap.Generation }
func (m Model) Observation() state.Vector { return m.obs.Clone() }
func (m Model) Selected() int            { return m.selected }
func (m Model) Rate() float64            { return m.rate }

func (m Model) feed() string {
	switch {
	case !m.have:
		return m.st.warn.Render("WAITING")
	case m.paused:
		return m.st.warn.Render("PAUSED")
	case m.lastTick.Sub(m.snap.UpdatedAt) > m.staleAfter:
		return m.st.bad.Render("STALE")
	default:
		return m.st.ok.Render("LIVE")
	}
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(m.st.header.Render("SIMBRIDGE · "+strings.ToUpper(m.projector.Name())) + "\n\n")

	conn := ""
	if m.status != nil {
		conn = m.status() + "  "
	}
	s.WriteString(conn + m.feed() + "\n\n")

	age := "-"
	if m.have {
		age = m.lastTick.Sub(m.snap.UpdatedAt).Round(time.Millisecond).String()
	}
	s.WriteString(m.st.label.Render("Generation") + m.st.value.Render(fmt.Sprintf("%d", m.snap.Generation)) + "\n")
	s.WriteString(m.st.label.Render("Updates/s") + m.st.value.Render(fmt.Sprintf("%.1f", m.rate)) + "\n")
	s.WriteString(m.st.label.Render("Age") + m.st.value.Render(age) + "\n")
	s.WriteString(separator(48) + "\n")

	for i, label := range m.labels {
		marker := "  "
		if i == m.selected {
			marker = "▸ "
		}
		name := m.st.label.Render(label)
		if m.derived[i] {
			name = m.st.derived.Width(24).Render(label)
		}
		v := 0.0
		if i < len(m.obs) {
			v = m.obs[i]
		}
		s.WriteString(marker + name + m.st.value.Render(fmt.Sprintf("%10.4f  ", v)) + Sparkline(m.history[i], 20) + "\n")
	}

	if m.selected < len(m.history) && len(m.history[m.selected]) > 1 {
		chart := asciigraph.Plot(m.history[m.selected],
			asciigraph.Height(6),
			asciigraph.Width(50),
			asciigraph.Caption(m.labels[m.selected]))
		s.WriteString(m.st.graph.Render(chart) + "\n")
	}

	if m.showHelp {
		s.WriteString(m.st.help.Render("SPACE pause  TAB/←→ select slot  C clear  T theme  ? help  Q quit"))
	} else {
		s.WriteString(m.st.help.Render("? help  Q quit"))
	}
	return m.st.panel.Render(s.String())
}

type docReader state.Document

func (d docReader) Observation(spec state.ObservationSpec) state.Vector {
	return spec.Project(state.Document(d))
}

// RunMonitor runs the monitor in the alternate screen until the user quits
// or ctx is done.
func RunMonitor(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
