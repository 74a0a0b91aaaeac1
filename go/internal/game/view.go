// Package game reduces ledger snapshots into the client's view of a game.
package game

import (
	"time"
)

type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseQuestion   Phase = "question"
	PhaseAnswer     Phase = "answer"
	PhaseFinalizing Phase = "finalizing"
	PhaseFinished   Phase = "finished"
)

// Tally counts the current round's votes. Majority uses the lowest option on ties.
type Tally struct {
	A        int   `json:"a"`
	B        int   `json:"b"`
	C        int   `json:"c"`
	Majority uint8 `json:"majority"`
	Total    int   `json:"total"`
}

type Question struct {
	Text    string `json:"text"`
	OptionA string `json:"optionA"`
	OptionB string `json:"optionB"`
	OptionC string `json:"optionC"`
}

// View is the reduced, read-only projection of one game. Only Reducer builds
// values of this type; consumers receive copies.
type View struct {
	GameID          string    `json:"gameId"`
	Tier            uint8     `json:"tier"`
	Phase           Phase     `json:"phase"`
	Round           uint64    `json:"round"`
	PlayerCount     int       `json:"playerCount"`
	Players         []string  `json:"players"`
	Eliminated      []string  `json:"eliminated"`
	EliminatedCount int       `json:"eliminatedCount"`
	Asker           string    `json:"askerAddress"`
	Question        *Question `json:"question,omitempty"`
	Tally           *Tally    `json:"tally,omitempty"`
	PrizePool       uint64    `json:"prizePool,string"`
	Self            string    `json:"self,omitempty"`
	SelfEliminated  bool      `json:"selfEliminated"`
	SelfAnswered    bool      `json:"selfAnswered"`
	SelfIsAsker     bool      `json:"selfIsAsker"`
	CanClaim        bool      `json:"canClaim"`
	Deadline        time.Time `json:"deadline,omitzero"`
	ObservedAt      time.Time `json:"observedAt"`
	SnapshotVersion uint64    `json:"snapshotVersion"`
}

// TimeRemaining returns how long until the deadline, clamped at zero.
func (v View) TimeRemaining(now time.Time) time.Duration {
	if v.Deadline.IsZero() {
		return 0
	}
	if d := v.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IsZero reports whether v has never been produced by a reducer.
func (v View) IsZero() bool {
	return v.GameID == ""
}

// Transition records a phase or round change between two consecutive views.
type Transition struct {
	GameID    string    `json:"gameId"`
	From      Phase     `json:"from"`
	To        Phase     `json:"to"`
	FromRound uint64    `json:"fromRound"`
	Round     uint64    `json:"round"`
	At        time.Time `json:"at"`
}
