package game

import (
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/majorityrules/go/internal/snapshot"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

// Reducer derives views from snapshots. It holds no per-game state; the
// previous view is passed in by the caller.
type Reducer struct {
	minPlayers int
	self       string
	clock      clockwork.Clock
}

// NewReducer builds a reducer for the given local player. minPlayers is the
// lobby size below which a game is still waiting.
func NewReducer(minPlayers int, self string, clock clockwork.Clock) *Reducer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reducer{
		minPlayers: minPlayers,
		self:       tx.NormalizeAddress(self),
		clock:      clock,
	}
}

func (r *Reducer) Self() string {
	return r.self
}

// Reduce folds snap into prev. A snapshot older than prev for the same game
// (lower round or lower object version) is ignored and prev is returned. The
// returned transition is nil unless phase or round changed from a prior view.
func (r *Reducer) Reduce(prev View, snap *snapshot.Game) (View, *Transition) {
	if snap == nil {
		return prev, nil
	}
	sameGame := !prev.IsZero() && prev.GameID == snap.ID
	if sameGame && (snap.Round < prev.Round || snap.Version < prev.SnapshotVersion) {
		return prev, nil
	}

	now := r.clock.Now()
	phase := r.phase(snap, now)

	v := View{
		GameID:          snap.ID,
		Tier:            snap.Tier,
		Phase:           phase,
		Round:           snap.Round,
		PlayerCount:     len(snap.Players),
		Players:         slices.Clone(snap.Players),
		Asker:           snap.Asker,
		PrizePool:       snap.PrizePool,
		Self:            r.self,
		Deadline:        snap.Deadline,
		ObservedAt:      now,
		SnapshotVersion: snap.Version,
	}

	var losers []string
	if snap.HasQuestion() {
		v.Question = &Question{
			Text:    snap.Question.Text,
			OptionA: snap.Question.OptionA,
			OptionB: snap.Question.OptionB,
			OptionC: snap.Question.OptionC,
		}
		tally := CountVotes(snap.Answers)
		v.Tally = &tally
		losers = Losers(snap.Answers, tally.Majority)
	}

	v.Eliminated = eliminated(snap, losers)
	v.EliminatedCount = len(v.Eliminated)

	if r.self != "" {
		inGame := slices.Contains(v.Players, r.self)
		_, answered := snap.Answers[r.self]
		v.SelfEliminated = inGame && slices.Contains(v.Eliminated, r.self)
		v.SelfAnswered = inGame && answered && snap.HasQuestion()
		v.SelfIsAsker = r.self == snap.Asker
		v.CanClaim = phase == PhaseFinished && inGame && !v.SelfEliminated
	}

	var tr *Transition
	if sameGame && (prev.Phase != v.Phase || prev.Round != v.Round) {
		tr = &Transition{
			GameID:    v.GameID,
			From:      prev.Phase,
			To:        v.Phase,
			FromRound: prev.Round,
			Round:     v.Round,
			At:        now,
		}
	}
	return v, tr
}

// phase applies the derivation rules in order. Finalizing is advisory: the
// deadline has passed but the ledger has not closed the round yet.
func (r *Reducer) phase(s *snapshot.Game, now time.Time) Phase {
	switch {
	case s.Over():
		return PhaseFinished
	case !s.HasQuestion():
		if s.Status == snapshot.StatusWaiting || len(s.Players) < r.minPlayers {
			return PhaseWaiting
		}
		return PhaseQuestion
	case !s.Deadline.IsZero() && !now.Before(s.Deadline):
		return PhaseFinalizing
	default:
		return PhaseAnswer
	}
}

// eliminated merges the ledger's eliminated list with this round's losers,
// keeping only listed players in player order.
func eliminated(s *snapshot.Game, losers []string) []string {
	out := []string{}
	for _, p := range s.Players {
		if slices.Contains(s.Eliminated, p) || slices.Contains(losers, p) {
			out = append(out, p)
		}
	}
	return out
}
