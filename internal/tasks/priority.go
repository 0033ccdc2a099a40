package tasks

import (
	"math"
	"time"

	"github.com/ankittk/taskwatch/internal/store"
	"github.com/ankittk/taskwatch/pkg/models"
)

// Band thresholds: [0, 0.4) low, [0.4, 0.7) medium, [0.7, 1] high.
const (
	MediumThreshold = 0.4
	HighThreshold   = 0.7
)

// Clamp01 limits p to [0, 1].
func Clamp01(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}

// Band labels a priority for display.
func Band(p float64) string {
	switch {
	case p >= HighThreshold:
		return models.BandHigh
	case p >= MediumThreshold:
		return models.BandMedium
	default:
		return models.BandLow
	}
}

// EffectiveStatus is the status a reader observes at now: a snoozed task whose
// snoozed_until has passed is pending.
func EffectiveStatus(t store.Task, now time.Time) string {
	if snoozeExpired(t, now) {
		return models.StatusPending
	}
	return t.Status
}

func snoozeExpired(t store.Task, now time.Time) bool {
	return t.Status == models.StatusSnoozed && t.SnoozedUntil != nil && !now.Before(*t.SnoozedUntil)
}

// ActiveSeconds is the total non-snoozed time the task has spent open up to now.
// Terminal tasks stop accruing when they close.
func ActiveSeconds(t store.Task, now time.Time) float64 {
	switch {
	case snoozeExpired(t, now):
		return t.ActiveSeconds + now.Sub(*t.SnoozedUntil).Seconds()
	case t.Status == models.StatusSnoozed, IsTerminal(t.Status):
		return t.ActiveSeconds
	}
	d := now.Sub(t.DecayAnchor).Seconds()
	if d < 0 {
		d = 0
	}
	return t.ActiveSeconds + d
}

// Priority is the decayed priority at now. ratePerHour is priority units lost per
// active hour; the result never leaves [0, 1].
func Priority(t store.Task, ratePerHour float64, now time.Time) float64 {
	if ratePerHour < 0 {
		ratePerHour = 0
	}
	p := t.InitialPriority - ratePerHour/3600*ActiveSeconds(t, now)
	return Clamp01(math.Round(p*1e9) / 1e9)
}

// materialize applies an expired snooze to the stored fields so commands see the
// same state readers do.
func materialize(t *store.Task, now time.Time) {
	if !snoozeExpired(*t, now) {
		return
	}
	t.DecayAnchor = *t.SnoozedUntil
	t.SnoozedUntil = nil
	t.Status = models.StatusPending
}

// freeze folds the current active segment into ActiveSeconds; used when a task stops
// accruing decay (snooze or close).
func freeze(t *store.Task, now time.Time) {
	t.ActiveSeconds = ActiveSeconds(*t, now)
	t.DecayAnchor = now
}

// effective returns t as a reader sees it at now.
func effective(t store.Task, ratePerHour float64, now time.Time) store.Task {
	t.CurrentPriority = Priority(t, ratePerHour, now)
	if snoozeExpired(t, now) {
		t.Status = models.StatusPending
		t.SnoozedUntil = nil
	}
	return t
}
