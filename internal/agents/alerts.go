package agents

import (
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
)

const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"

	ringingLongAfter = 30 * time.Second
	callLongAfter    = 30 * time.Minute
)

// CheckAlerts evaluates alert rules for one agent as of now
func CheckAlerts(v types.AgentView, now time.Time) []types.Alert {
	var alerts []types.Alert

	switch v.Status {
	case types.AgentRinging:
		if dur := now.Sub(v.StatusSince); dur > ringingLongAfter {
			alerts = append(alerts, types.Alert{
				Type:     "ringing_long",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Ringing for %s", formatDuration(dur)),
			})
		}

	case types.AgentInUse:
		since := v.StatusSince
		if v.CurrentCallStart != nil {
			since = *v.CurrentCallStart
		}
		if dur := now.Sub(since); dur > callLongAfter {
			alerts = append(alerts, types.Alert{
				Type:     "call_long",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("On call for %s", formatDuration(dur)),
			})
		}

	case types.AgentUnavailable:
		alerts = append(alerts, types.Alert{
			Type:     "unavailable",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("Unavailable for %s", formatDuration(now.Sub(v.StatusSince))),
		})
	}

	return alerts
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if mins >= 60 {
		hours := mins / 60
		mins = mins % 60
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
