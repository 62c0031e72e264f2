package viz

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/simbridge/internal/cache"
	"github.com/san-kum/simbridge/internal/observe"
	"github.com/san-kum/simbridge/internal/state"
)

func planeState(sink, tas float64) state.Document {
	return state.Document{
		"true_airspeed": state.Number(tas),
		"vh_ind":        state.Number(sink),
		"h_ind":         state.Number(1500),
		"stallWarning":  state.Bool(false),
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestMonitorProjectsSnapshots(t *testing.T) {
	c := cache.New()
	m := NewMonitor(c, observe.GlideAngle{}, WithStatus(func() string { return "connected" }))

	start := time.Now()
	m = update(t, m, TickMsg(start))
	assert.Contains(t, m.View(), "WAITING")
	assert.Zero(t, m.Generation())

	c.PutState(planeState(-2, 40))
	c.PutState(planeState(-2, 40))
	m = update(t, m, TickMsg(start.Add(time.Second)))

	assert.Equal(t, uint64(2), m.Generation())
	obs := m.Observation()
	require.Len(t, obs, observe.GlideAngle{}.Spec().Len())
	assert.InDelta(t, observe.RadToDeg(observe.DerivedAngle(-2, 40)), obs[observe.GlideSlotAngle], 1e-9)
	assert.InDelta(t, 1500, obs[observe.GlideSlotAltitude], 1e-9)
	assert.Greater(t, m.Rate(), 0.0)

	view := m.View()
	assert.Contains(t, view, "GLIDE_ANGLE")
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "glide_angle_deg")
	assert.Contains(t, view, "LIVE")
}

func TestMonitorMarksStaleFeed(t *testing.T) {
	c := cache.New()
	m := NewMonitor(c, observe.Speed{}, WithStaleAfter(time.Second))

	c.PutState(planeState(0, 40))
	m = update(t, m, TickMsg(time.Now().Add(5*time.Second)))
	assert.Contains(t, m.View(), "STALE")
}

func TestMonitorPauseFreezesView(t *testing.T) {
	c := cache.New()
	m := NewMonitor(c, observe.Speed{})

	c.PutState(planeState(0, 40))
	m = update(t, m, TickMsg(time.Now()))
	require.Equal(t, uint64(1), m.Generation())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{' '}})
	c.PutState(planeState(0, 41))
	m = update(t, m, TickMsg(time.Now()))
	assert.Equal(t, uint64(1), m.Generation())
	assert.Contains(t, m.View(), "PAUSED")
}

func TestMonitorSlotSelectionWraps(t *testing.T) {
	m := NewMonitor(cache.New(), observe.Speed{})
	n := observe.Speed{}.Spec().Len()

	m = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, n-1, m.Selected())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 0, m.Selected())
}

func TestMonitorQuits(t *testing.T) {
	m := NewMonitor(cache.New(), observe.Speed{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "──────", Sparkline(nil, 6))
	assert.Equal(t, "▁█", Sparkline([]float64{0, 1}, 2))
	assert.Equal(t, "▁▁▁", Sparkline([]float64{3, 3, 3}, 3))
}

func TestThemeCycle(t *testing.T) {
	assert.Equal(t, ThemeRetro, nextTheme(ThemeCockpit))
	assert.Equal(t, ThemeCockpit, nextTheme(ThemeMinimal))
	assert.Equal(t, ThemeCockpit, GetTheme("missing"))
	assert.Equal(t, []string{"cockpit", "retro", "minimal"}, ThemeNames())
}
