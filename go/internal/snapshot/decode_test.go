package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcdev12/majorityrules/go/internal/ledger"
)

const (
	addrA = "0x00000000000000000000000000000000000000aa"
	addrB = "0x00000000000000000000000000000000000000bb"
)

func TestDecodeFullGame(t *testing.T) {
	fields := `{
		"tier": 2,
		"status": "1",
		"current_round": "3",
		"players": ["` + addrA + `", "` + addrB + `"],
		"eliminated": [],
		"prize_pool": "18446744073709551615",
		"current_questioner": "` + addrA + `",
		"question_asked": true,
		"question_text": "Best season?",
		"option_a": "Spring",
		"option_b": "Summer",
		"option_c": "Winter",
		"player_answers": {"` + addrA + `": 1, "` + addrB + `": "3"},
		"deadline": "1740830400000"
	}`

	g := Decode("0xgame", 12, []byte(fields))
	require.Empty(t, g.Problems)
	require.Equal(t, uint8(2), g.Tier)
	require.Equal(t, StatusActive, g.Status)
	require.Equal(t, uint64(3), g.Round)
	require.Equal(t, []string{addrA, addrB}, g.Players)
	require.Equal(t, uint64(18446744073709551615), g.PrizePool)
	require.True(t, g.HasQuestion())
	require.Equal(t, "Winter", g.Question.OptionC)
	require.Equal(t, map[string]uint8{addrA: 1, addrB: 3}, g.Answers)
	require.Equal(t, time.UnixMilli(1740830400000), g.Deadline)
	require.True(t, g.HasPlayer("0x00000000000000000000000000000000000000AA"))
}

func TestDecodeVecMapAnswers(t *testing.T) {
	fields := `{"player_answers": {"type": "vec_map", "fields": {"contents": [
		{"type": "entry", "fields": {"key": "` + addrA + `", "value": 2}},
		{"key": "` + addrB + `", "value": "1"}
	]}}}`

	g := Decode("0xgame", 1, []byte(fields))
	require.Equal(t, map[string]uint8{addrA: 2, addrB: 1}, g.Answers)
}

func TestDecodeDegradesToDefaults(t *testing.T) {
	fields := `{
		"tier": "two",
		"status": 9,
		"players": "nobody",
		"eliminated": [42, "` + addrB + `"],
		"question_text": 5,
		"player_answers": [1, 2],
		"new_field_from_upgrade": {"x": 1}
	}`

	g := Decode("0xgame", 1, []byte(fields))
	require.Zero(t, g.Tier)
	require.Equal(t, StatusWaiting, g.Status)
	require.NotNil(t, g.Players)
	require.Empty(t, g.Players)
	require.Equal(t, []string{addrB}, g.Eliminated)
	require.False(t, g.HasQuestion())
	require.NotNil(t, g.Answers)
	require.Empty(t, g.Answers)
	require.True(t, g.Deadline.IsZero())
	require.NotEmpty(t, g.Problems)

	fieldsWithProblems := map[string]bool{}
	for _, p := range g.Problems {
		fieldsWithProblems[p.Field] = true
	}
	for _, f := range []string{"tier", "status", "players", "eliminated", "question_text", "player_answers", "current_round"} {
		require.True(t, fieldsWithProblems[f], f)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	g := Decode("0xgame", 1, []byte("{not json"))
	require.Equal(t, "0xgame", g.ID)
	require.Empty(t, g.Players)
	require.NotEmpty(t, g.Problems)
}

type objectReader map[string]json.RawMessage

func (o objectReader) GetObject(_ context.Context, id string) (*ledger.Object, error) {
	fields, ok := o[id]
	if !ok {
		return nil, ledger.ErrObjectNotFound
	}
	return &ledger.Object{Ref: ledger.ObjectRef{ID: id, Version: 5}, Fields: fields}, nil
}

func TestFetcher(t *testing.T) {
	f := NewFetcher(objectReader{"0xgame": json.RawMessage(`{"status": 2, "players": []}`)})

	g, err := f.Fetch(context.Background(), "0xgame")
	require.NoError(t, err)
	require.Equal(t, uint64(5), g.Version)
	require.True(t, g.Over())

	_, err = f.Fetch(context.Background(), "0xmissing")
	require.True(t, errors.Is(err, ledger.ErrObjectNotFound))
}
