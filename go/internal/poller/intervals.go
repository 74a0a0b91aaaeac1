package poller

import (
	"time"

	"github.com/mcdev12/majorityrules/go/internal/game"
)

// Intervals is the polling cadence per phase. A non-positive interval ends
// the loop once a view in that phase has been delivered.
type Intervals struct {
	Waiting    time.Duration
	Active     time.Duration
	Finalizing time.Duration
	Finished   time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Waiting:    2000 * time.Millisecond,
		Active:     1500 * time.Millisecond,
		Finalizing: 1500 * time.Millisecond,
	}
}

// For returns the delay before the next poll of a game in phase p. A game
// with no view yet is polled at the waiting cadence.
func (i Intervals) For(p game.Phase) time.Duration {
	switch p {
	case game.PhaseQuestion, game.PhaseAnswer:
		return i.Active
	case game.PhaseFinalizing:
		return i.Finalizing
	case game.PhaseFinished:
		return i.Finished
	default:
		return i.Waiting
	}
}
