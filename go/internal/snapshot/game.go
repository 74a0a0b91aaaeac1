// Package snapshot reads game objects from the ledger and decodes them into a
// typed, defaulted structure. Decoding never fails: unexpected shapes are
// recorded as problems and replaced by zero values.
package snapshot

import (
	"fmt"
	"slices"
	"time"

	"github.com/mcdev12/majorityrules/go/internal/tx"
)

type Status uint8

const (
	StatusWaiting Status = iota
	StatusActive
	StatusFinished
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusActive:
		return "active"
	case StatusFinished:
		return "finished"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

type Question struct {
	Text    string
	OptionA string
	OptionB string
	OptionC string
}

// Game is one decoded snapshot of a game object.
type Game struct {
	ID            string
	Version       uint64
	Tier          uint8
	Status        Status
	Round         uint64
	Players       []string
	Eliminated    []string
	PrizePool     uint64
	Asker         string
	QuestionAsked bool
	Question      Question
	// Answers maps a player address to the option code they chose.
	Answers  map[string]uint8
	Deadline time.Time

	Problems []DecodeError
}

// HasQuestion reports whether the current round's question has been recorded.
func (g *Game) HasQuestion() bool {
	return g.Question.Text != ""
}

// Over reports whether the game has reached a terminal status.
func (g *Game) Over() bool {
	return g.Status == StatusFinished || g.Status == StatusCancelled
}

func (g *Game) HasPlayer(addr string) bool {
	return slices.Contains(g.Players, tx.NormalizeAddress(addr))
}

func (g *Game) IsEliminated(addr string) bool {
	return slices.Contains(g.Eliminated, tx.NormalizeAddress(addr))
}

// DecodeError describes one field that did not match the expected schema.
type DecodeError struct {
	Field  string
	Reason string
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}
