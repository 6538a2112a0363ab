package notify

import (
	"fmt"

	"svcwatch/internal/monitor"
)

func statusIcon(s monitor.Status) string {
	switch s {
	case monitor.StatusRunning:
		return "🟢"
	case monitor.StatusStopped:
		return "⚪"
	case monitor.StatusFailed:
		return "🔴"
	default:
		return "❓"
	}
}

// Render turns a change event into a one-line human message.
func Render(ev monitor.ChangeEvent) string {
	switch ev.Kind {
	case monitor.EventStatusChanged:
		return fmt.Sprintf("%s %s: %s -> %s", statusIcon(ev.NewStatus), ev.Name, ev.OldStatus, ev.NewStatus)
	case monitor.EventServiceAppeared:
		return fmt.Sprintf("➕ %s is now monitored (%s)", ev.Name, ev.NewStatus)
	case monitor.EventServiceDisappeared:
		return fmt.Sprintf("➖ %s is no longer monitored", ev.Name)
	default:
		return fmt.Sprintf("%s: %s", ev.Kind, ev.Name)
	}
}
