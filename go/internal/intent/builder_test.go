package intent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

type fakeEvents struct {
	calls  atomic.Int32
	events map[string][]ledger.Event
	err    error
}

func (f *fakeEvents) QueryEvents(_ context.Context, q ledger.EventQuery) ([]ledger.Event, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.events[q.EventType], nil
}

func event(t *testing.T, fields map[string]any) ledger.Event {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return ledger.Event{ParsedJSON: raw}
}

func newTestBuilder(t *testing.T, src *fakeEvents) *Builder {
	t.Helper()
	return NewBuilder(Config{PackageID: "0xpkg"}, src)
}

func TestLobbyResolutionIsCached(t *testing.T) {
	src := &fakeEvents{events: map[string][]ledger.Event{
		"0xpkg::battle_royale::TierLobbyCreated": {
			event(t, map[string]any{"tier": 1, "lobby_id": "0xlobby1"}),
			event(t, map[string]any{"tier": "2", "lobby_id": "0xlobby2"}),
		},
	}}
	b := newTestBuilder(t, src)
	ctx := context.Background()

	ids := make([]string, 8)
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = b.Lobby(ctx, 1)
		}()
	}
	wg.Wait()
	for i := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, "0xlobby1", ids[i])
	}

	id, err := b.Lobby(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "0xlobby2", id)
	require.LessOrEqual(t, src.calls.Load(), int32(8))

	before := src.calls.Load()
	_, err = b.Lobby(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, before, src.calls.Load())
}

func TestLobbyMissingIsResolutionError(t *testing.T) {
	src := &fakeEvents{}
	b := newTestBuilder(t, src)

	_, err := b.CreateGame(context.Background(), 3)
	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	require.Equal(t, "lobby", resErr.Object)
	require.Equal(t, Tier(3), resErr.Tier)

	_, err = b.Lobby(context.Background(), 9)
	require.True(t, errors.As(err, &resErr))
}

func TestLobbyQueryFailureIsNotCached(t *testing.T) {
	src := &fakeEvents{err: errors.New("node down")}
	b := newTestBuilder(t, src)
	ctx := context.Background()

	_, err := b.Lobby(ctx, 1)
	require.Error(t, err)

	src.err = nil
	src.events = map[string][]ledger.Event{
		"0xpkg::battle_royale::TierLobbyCreated": {event(t, map[string]any{"tier": 1, "lobby_id": "0xl"})},
	}
	id, err := b.Lobby(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "0xl", id)
}

func TestStaticConfigSkipsLookup(t *testing.T) {
	src := &fakeEvents{}
	b := NewBuilder(Config{
		PackageID:  "0xpkg",
		TreasuryID: "0xtreasury",
		Lobbies:    map[Tier]string{1: "0xlobby"},
	}, src)

	in, err := b.JoinGame(context.Background(), 1, "0xgame", "0xcoin")
	require.NoError(t, err)
	require.Equal(t, "0xpkg::battle_royale::join_game", in.Target)
	require.Equal(t, []string{"0xlobby", "0xgame", "0xtreasury", "0xcoin", ClockObjectID}, in.ObjectIDs())
	require.Zero(t, src.calls.Load())
}

func TestActionArguments(t *testing.T) {
	b := NewBuilder(Config{PackageID: "0xpkg", BadgeRegistryID: "0xbadges"}, &fakeEvents{})

	in, err := b.AskQuestion("0xgame", Question{Text: "Cats or dogs?", OptionA: "Cats", OptionB: "Dogs", OptionC: "Neither"}, 2)
	require.NoError(t, err)
	require.Equal(t, "ask_question", in.Function())
	require.Len(t, in.Arguments, 7)
	require.Equal(t, tx.String("Cats or dogs?"), in.Arguments[1])
	require.Equal(t, tx.U8(2), in.Arguments[5])

	in, err = b.SubmitAnswer("0xgame", 3)
	require.NoError(t, err)
	require.Equal(t, []tx.Argument{tx.Object("0xgame"), tx.U8(3), tx.Object(ClockObjectID)}, in.Arguments)

	in = b.FinalizeRound("0xgame")
	require.Equal(t, []string{"0xgame", "0xbadges", ClockObjectID}, in.ObjectIDs())

	in = b.ClaimPrize("0xgame")
	require.True(t, in.SelfFunded)
	require.Equal(t, []string{"0xgame"}, in.ObjectIDs())

	in = b.StartGame("0xgame")
	require.False(t, in.SelfFunded)
}

func TestQuestionValidation(t *testing.T) {
	b := newTestBuilder(t, &fakeEvents{})
	long := strings.Repeat("x", MaxQuestionLength+1)

	_, err := b.AskQuestion("0xgame", Question{Text: long, OptionA: "a", OptionB: "b", OptionC: "c"}, 1)
	require.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = b.AskQuestion("0xgame", Question{Text: "q", OptionA: "", OptionB: "b", OptionC: "c"}, 1)
	require.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = b.AskQuestion("0xgame", Question{Text: "q", OptionA: "a", OptionB: "b", OptionC: "c"}, 4)
	require.ErrorIs(t, err, ErrInvalidAnswer)

	_, err = b.SubmitAnswer("0xgame", 0)
	require.ErrorIs(t, err, ErrInvalidAnswer)
}

func TestTreasuryResolution(t *testing.T) {
	src := &fakeEvents{events: map[string][]ledger.Event{
		"0xpkg::battle_royale::TreasuryCreated": {event(t, map[string]any{"treasury_id": "0xt"})},
	}}
	b := newTestBuilder(t, src)

	id, err := b.Treasury(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0xt", id)

	b2 := newTestBuilder(t, &fakeEvents{})
	_, err = b2.Treasury(context.Background())
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestTiers(t *testing.T) {
	info, err := LookupTier(5)
	require.NoError(t, err)
	require.Equal(t, "Whale", info.Name)
	require.Equal(t, uint64(100_000_000_000), info.Fee)

	tier, err := ParseTier("2")
	require.NoError(t, err)
	require.Equal(t, "Rookie", tier.String())

	_, err = ParseTier("6")
	require.Error(t, err)
}
