// Package viz renders a live terminal monitor of the telemetry feed.
//
// The monitor is a Bubble Tea model that polls the state cache, projects
// the current document through a task's observation spec and plots the
// selected slot with asciigraph.
//
// # Key Bindings
//
//	Space     - Pause/Resume polling
//	Tab/←→    - Select the plotted slot
//	C         - Clear history
//	T         - Cycle color themes
//	?         - Toggle help
//	Q         - Quit
package viz
