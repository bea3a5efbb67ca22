package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks server health from /healthz polling and lifecycle
// events.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	State         string
	Version       string
	Connected     bool
	LastCheck     time.Time
}

// Activity lights up on events and fades over ten seconds.
type Activity struct {
	dots      int
	lastEvent time.Time
}

func (a *Activity) OnEvent(now time.Time) {
	a.dots = 5
	a.lastEvent = now
}

func (a *Activity) Decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	left := 5 - int(now.Sub(a.lastEvent)/(2*time.Second))
	a.dots = max(left, 0)
}

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < a.dots {
			b.WriteString(theme.ActivityOn.Render("●"))
		} else {
			b.WriteString(theme.ActivityOff.Render("○"))
		}
	}
	return b.String()
}

func renderHeader(health HealthState, activity Activity, warning string, total, failed int, theme Theme, width int) string {
	innerWidth := width - 4

	status := theme.StatusOK.Render("CONNECTED")
	switch {
	case !health.Connected:
		status = theme.StatusFailed.Render("CONNECTING")
	case health.Status != "ok" && health.Status != "":
		status = theme.StatusFailed.Render("DEGRADED")
	}

	state := health.State
	if state == "" {
		state = "unknown"
	}
	stateStyle := theme.Highlight
	switch state {
	case "configured":
		stateStyle = theme.StatusOK
	case "disabled":
		stateStyle = theme.StatusFailed
	}

	title := " GPGBRIDGE WATCH"
	if health.Version != "" {
		title += " " + theme.Dim.Render(health.Version)
	}
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  Engine: %s  Up: %s  Requests: %d  Failed: %d  %s",
		status,
		stateStyle.Render(state),
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		total, failed,
		activity.Render(theme),
	)

	lines := []string{titleLine, statsLine}
	if warning != "" {
		lines = append(lines, theme.Highlight.Render(" ! "+warning))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
