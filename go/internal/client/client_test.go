package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/majorityrules/go/internal/intent"
	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/poller"
	"github.com/mcdev12/majorityrules/go/internal/session"
	"github.com/mcdev12/majorityrules/go/internal/snapshot"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

const pkg = "0xpkg"

type fakeLedger struct {
	mu          sync.Mutex
	objects     map[string]json.RawMessage
	events      map[string][]ledger.Event
	queries     []ledger.EventQuery
	coins       []ledger.Coin
	submissions []tx.Data
	// resultEvents are attached to every execution result.
	resultEvents []ledger.Event
	// status overrides the execution status when set.
	status string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		objects: make(map[string]json.RawMessage),
		events:  make(map[string][]ledger.Event),
		coins: []ledger.Coin{
			{Ref: ledger.ObjectRef{ID: "0xdust", Version: 1}, Balance: 5},
			{Ref: ledger.ObjectRef{ID: "0xfee", Version: 1}, Balance: 20_000_000},
			{Ref: ledger.ObjectRef{ID: "0xbig", Version: 1}, Balance: 900_000_000},
		},
	}
}

func (f *fakeLedger) GetObject(_ context.Context, id string) (*ledger.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrObjectNotFound, id)
	}
	return &ledger.Object{Ref: ledger.ObjectRef{ID: id, Version: 1}, Fields: fields}, nil
}

func (f *fakeLedger) QueryEvents(_ context.Context, q ledger.EventQuery) ([]ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.events[q.EventType], nil
}

func (f *fakeLedger) GetCoins(context.Context, string) ([]ledger.Coin, error) {
	return f.coins, nil
}

func (f *fakeLedger) ReferenceGasPrice(context.Context) (uint64, error) {
	return 1000, nil
}

func (f *fakeLedger) ExecuteTransaction(_ context.Context, txBytes []byte, _ []string) (*ledger.ExecuteResult, error) {
	data, err := tx.Decode(txBytes)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, data)
	status := ledger.StatusSuccess
	if f.status != "" {
		status = f.status
	}
	return &ledger.ExecuteResult{
		Digest: fmt.Sprintf("digest-%d", len(f.submissions)),
		Status: status,
		Events: f.resultEvents,
	}, nil
}

func (f *fakeLedger) putGame(id string, tier int, status snapshot.Status, players ...string) {
	quoted := make([]string, len(players))
	for i, p := range players {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	fields := fmt.Sprintf(`{"tier":%d,"status":%d,"current_round":0,"players":[%s],"eliminated":[],
		"prize_pool":"0","current_questioner":"","question_asked":false,"question_text":"",
		"option_a":"","option_b":"","option_c":"","player_answers":{},"deadline":"0"}`,
		tier, status, strings.Join(quoted, ","))
	f.mu.Lock()
	f.objects[id] = json.RawMessage(fields)
	f.mu.Unlock()
}

func (f *fakeLedger) addCreated(id string, tier int, ms int64) {
	ev := ledger.Event{
		Type:        pkg + "::battle_royale::GameCreated",
		ParsedJSON:  json.RawMessage(fmt.Sprintf(`{"game_id":%q,"tier":%d}`, id, tier)),
		TimestampMs: ms,
	}
	f.mu.Lock()
	f.events[ev.Type] = append(f.events[ev.Type], ev)
	f.mu.Unlock()
}

func (f *fakeLedger) lastSubmission(t *testing.T) tx.Data {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.submissions)
	return f.submissions[len(f.submissions)-1]
}

type fixture struct {
	ledger   *fakeLedger
	sessions *session.MemoryStore
	signer   *tx.KeySigner
	clock    *clockwork.FakeClock
	client   *Client
}

func setup(t *testing.T) *fixture {
	t.Helper()
	signer, err := tx.GenerateKeySigner()
	require.NoError(t, err)
	f := &fixture{
		ledger:   newFakeLedger(),
		sessions: session.NewMemoryStore(),
		signer:   signer,
		clock:    clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000)),
	}
	f.client = New(Config{
		Intent: intent.Config{
			PackageID:  pkg,
			TreasuryID: "0xtreasury",
			Lobbies:    map[intent.Tier]string{1: "0xlobby1", 2: "0xlobby2"},
		},
		GasBudget:  50_000_000,
		MinPlayers: 4,
		Intervals:  poller.Intervals{Waiting: time.Minute, Active: time.Minute, Finalizing: time.Minute},
	}, f.ledger, nil, signer, f.sessions, f.clock)
	t.Cleanup(f.client.Close)
	return f
}

func TestCreateRemembersGameFromEvent(t *testing.T) {
	f := setup(t)
	f.ledger.resultEvents = []ledger.Event{
		{Type: pkg + "::battle_royale::GameCreated", ParsedJSON: json.RawMessage(`{"game_id":"0xnew","tier":1}`)},
	}
	f.ledger.putGame("0xnew", 1, snapshot.StatusWaiting, f.signer.Address())

	res, err := f.client.Create(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "0xnew", res.GameID)
	require.False(t, res.Sponsored)
	require.Equal(t, pkg+"::battle_royale::create_game", f.ledger.lastSubmission(t).Kind.Target)

	rec, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.Record{
		GameID:      "0xnew",
		Tier:        1,
		UserAddress: f.signer.Address(),
		JoinedAtMs:  1_700_000_000_000,
	}, *rec)

	require.Eventually(t, func() bool {
		_, ok := f.client.View("0xnew")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestCreateWithoutEventSkipsSession(t *testing.T) {
	f := setup(t)

	res, err := f.client.Create(context.Background(), 2)
	require.NoError(t, err)
	require.Empty(t, res.GameID)

	rec, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestJoinPaysWithSmallestCoveringCoin(t *testing.T) {
	f := setup(t)
	f.ledger.putGame("0xgame", 1, snapshot.StatusWaiting, f.signer.Address())

	res, err := f.client.Join(context.Background(), 1, "0xgame")
	require.NoError(t, err)
	require.Equal(t, "0xgame", res.GameID)

	sub := f.ledger.lastSubmission(t)
	require.Equal(t, []string{"0xlobby1", "0xgame", "0xtreasury", "0xfee", intent.ClockObjectID}, sub.Kind.ObjectIDs())
	require.Equal(t, "0xbig", sub.Gas.Payment[0].ID)

	rec, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0xgame", rec.GameID)
}

func TestJoinFailedExecutionSkipsSession(t *testing.T) {
	f := setup(t)
	f.ledger.putGame("0xgame", 1, snapshot.StatusWaiting, f.signer.Address())
	f.ledger.status = "failure"

	res, err := f.client.Join(context.Background(), 1, "0xgame")
	require.Nil(t, res)
	require.ErrorIs(t, err, ledger.ErrExecutionFailed)

	rec, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, rec)
	require.False(t, f.client.scheduler.Active("0xgame"))
}

func TestJoinWithoutPaymentCoin(t *testing.T) {
	f := setup(t)

	// Tier 3 costs more than any coin held.
	_, err := f.client.Join(context.Background(), 3, "0xgame")
	require.ErrorIs(t, err, ErrNoPaymentCoin)
	require.Empty(t, f.ledger.submissions)
}

func TestActionsTargetGameFunctions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q := intent.Question{Text: "Best pet?", OptionA: "Cat", OptionB: "Dog", OptionC: "Fish"}

	tests := []struct {
		name string
		act  func() (*ActionResult, error)
		fn   string
	}{
		{"start", func() (*ActionResult, error) { return f.client.Start(ctx, "0xgame") }, "start_game"},
		{"ask", func() (*ActionResult, error) { return f.client.Ask(ctx, "0xgame", q, 2) }, "ask_question"},
		{"answer", func() (*ActionResult, error) { return f.client.Answer(ctx, "0xgame", 3) }, "submit_answer"},
		{"finalize", func() (*ActionResult, error) { return f.client.Finalize(ctx, "0xgame") }, "finalize_round"},
		{"claim", func() (*ActionResult, error) { return f.client.Claim(ctx, "0xgame") }, "claim_prize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.act()
			require.NoError(t, err)
			require.Equal(t, "0xgame", res.GameID)
			require.Equal(t, tt.fn, f.ledger.lastSubmission(t).Kind.Function())
		})
	}
}

func TestInvalidAnswerIsNotSubmitted(t *testing.T) {
	f := setup(t)

	_, err := f.client.Answer(context.Background(), "0xgame", 4)
	require.ErrorIs(t, err, intent.ErrInvalidAnswer)
	require.Empty(t, f.ledger.submissions)
}

func TestLeaveClearsSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.ledger.putGame("0xgame", 1, snapshot.StatusWaiting, f.signer.Address())
	_, err := f.client.Join(ctx, 1, "0xgame")
	require.NoError(t, err)

	require.NoError(t, f.client.Leave(ctx, "0xgame"))

	rec, err := f.sessions.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.False(t, f.client.scheduler.Active("0xgame"))
}

func TestDoneAfterLeave(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.ledger.putGame("0xgame", 1, snapshot.StatusWaiting, f.signer.Address())
	_, err := f.client.Join(ctx, 1, "0xgame")
	require.NoError(t, err)

	done := f.client.Done("0xgame")
	require.NoError(t, f.client.Leave(ctx, "0xgame"))
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestResumeRestartsPolling(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.ledger.putGame("0xgame", 1, snapshot.StatusActive, f.signer.Address(), "0xbeef")
	require.NoError(t, f.sessions.Save(ctx, session.Record{GameID: "0xgame", Tier: 1, UserAddress: f.signer.Address()}))

	res, err := f.client.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "0xgame", res.View.GameID)
	require.True(t, f.client.scheduler.Active("0xgame"))
}

func TestResumeWithNothingStored(t *testing.T) {
	f := setup(t)

	res, err := f.client.Resume(context.Background())
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestListOpenGames(t *testing.T) {
	f := setup(t)
	f.ledger.addCreated("0xopen", 1, 300)
	f.ledger.addCreated("0xrunning", 1, 200)
	f.ledger.addCreated("0xother-tier", 2, 150)
	f.ledger.addCreated("0xgone", 1, 100)
	f.ledger.putGame("0xopen", 1, snapshot.StatusWaiting, "0xaa", "0xbb")
	f.ledger.putGame("0xrunning", 1, snapshot.StatusActive, "0xaa")
	f.ledger.putGame("0xother-tier", 2, snapshot.StatusWaiting)

	games, err := f.client.ListOpenGames(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []GameSummary{{GameID: "0xopen", Tier: 1, PlayerCount: 2, CreatedAtMs: 300}}, games)

	q := f.ledger.queries[len(f.ledger.queries)-1]
	require.Equal(t, 100, q.Limit)
	require.True(t, q.Descending)
}

func TestFindActiveGame(t *testing.T) {
	f := setup(t)
	me := f.signer.Address()
	f.ledger.addCreated("0xdone", 1, 300)
	f.ledger.addCreated("0xmine", 2, 200)
	f.ledger.addCreated("0xstranger", 1, 100)
	f.ledger.putGame("0xdone", 1, snapshot.StatusFinished, me)
	f.ledger.putGame("0xmine", 2, snapshot.StatusActive, "0xaa", me)
	f.ledger.putGame("0xstranger", 1, snapshot.StatusWaiting, "0xaa")

	found, err := f.client.FindActiveGame(context.Background())
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "0xmine", found.GameID)
	require.Equal(t, intent.Tier(2), found.Tier)
	require.Equal(t, 50, f.ledger.queries[len(f.ledger.queries)-1].Limit)
}

func TestFindActiveGameNone(t *testing.T) {
	f := setup(t)
	f.ledger.addCreated("0xstranger", 1, 100)
	f.ledger.putGame("0xstranger", 1, snapshot.StatusWaiting, "0xaa")

	found, err := f.client.FindActiveGame(context.Background())
	require.NoError(t, err)
	require.Nil(t, found)
}
