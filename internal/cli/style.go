package cli

import (
	"fmt"
	"time"

	"github.com/ankittk/taskwatch/pkg/models"
	"github.com/fatih/color"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

// bandLabel colors a priority by its band.
func bandLabel(band string, p float64) string {
	s := fmt.Sprintf("%.2f", p)
	switch band {
	case models.BandHigh:
		return red(s)
	case models.BandMedium:
		return yellow(s)
	default:
		return dim(s)
	}
}

func statusLabel(status string) string {
	switch status {
	case models.StatusInProgress:
		return cyan(status)
	case models.StatusCompleted:
		return green(status)
	case models.StatusSnoozed, models.StatusDismissed:
		return dim(status)
	default:
		return status
	}
}

func onOff(b bool) string {
	if b {
		return green("on")
	}
	return dim("off")
}

func ago(t time.Time, now time.Time) string {
	d := now.Sub(t).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String() + " ago"
}
