package crowdsale

import (
	"time"

	"github.com/mmeshcher/crowdsale-system/internal/model"
)

// Boundaries задаёт временные границы продажи: PrefundStart <= StartTime < EndTime.
type Boundaries struct {
	PrefundStart time.Time
	StartTime    time.Time
	EndTime      time.Time
}

func (b Boundaries) validate(strictPrefund bool) error {
	const op = "construct"
	if b.PrefundStart.IsZero() || b.StartTime.IsZero() || b.EndTime.IsZero() {
		return validationErr(op, "time boundaries must be set")
	}
	if b.StartTime.Before(b.PrefundStart) || (strictPrefund && !b.PrefundStart.Before(b.StartTime)) {
		return validationErr(op, "prefund start must precede start time")
	}
	if !b.StartTime.Before(b.EndTime) {
		return validationErr(op, "start time must precede end time")
	}
	return nil
}

// PhaseAt вычисляет фазу продажи на момент now.
func PhaseAt(now time.Time, b Boundaries, closed bool) model.Phase {
	switch {
	case closed || !now.Before(b.EndTime):
		return model.PhaseEnded
	case now.Before(b.PrefundStart):
		return model.PhaseNotStarted
	case now.Before(b.StartTime):
		return model.PhasePrefund
	default:
		return model.PhaseFunding
	}
}
