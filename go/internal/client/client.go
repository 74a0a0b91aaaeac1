// Package client is the game-facing facade: it turns player actions into
// submitted transactions and keeps a polled view of the joined game.
package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/mcdev12/majorityrules/go/internal/executor"
	"github.com/mcdev12/majorityrules/go/internal/game"
	"github.com/mcdev12/majorityrules/go/internal/intent"
	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/poller"
	"github.com/mcdev12/majorityrules/go/internal/session"
	"github.com/mcdev12/majorityrules/go/internal/snapshot"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

// ErrNoPaymentCoin means the player cannot cover a tier's entry fee.
var ErrNoPaymentCoin = errors.New("no coin covers the entry fee")

// Ledger is everything the client reads from or writes to the chain.
type Ledger interface {
	GetObject(ctx context.Context, id string) (*ledger.Object, error)
	QueryEvents(ctx context.Context, q ledger.EventQuery) ([]ledger.Event, error)
	GetCoins(ctx context.Context, owner string) ([]ledger.Coin, error)
	ReferenceGasPrice(ctx context.Context) (uint64, error)
	ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (*ledger.ExecuteResult, error)
}

type Config struct {
	Intent             intent.Config
	SponsorshipEnabled bool
	GasBudget          uint64
	MinPlayers         int
	Intervals          poller.Intervals
}

// ActionResult is returned by every state-changing call.
type ActionResult struct {
	Digest    string
	Sponsored bool
	// GameID is set by Create and Join.
	GameID string
}

type Client struct {
	cfg       Config
	signer    tx.Signer
	ledger    Ledger
	sessions  session.Store
	clock     clockwork.Clock
	builder   *intent.Builder
	executor  *executor.Executor
	fetcher   *snapshot.Fetcher
	reducer   *game.Reducer
	scheduler *poller.Scheduler
	resumer   *session.Resumer
	updates   *poller.Broadcast
}

// New wires a client. sponsor may be nil when sponsorship is disabled.
func New(cfg Config, l Ledger, sponsor executor.Sponsor, signer tx.Signer, sessions session.Store, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	fetcher := snapshot.NewFetcher(l)
	reducer := game.NewReducer(cfg.MinPlayers, signer.Address(), clock)
	return &Client{
		cfg:      cfg,
		signer:   signer,
		ledger:   l,
		sessions: sessions,
		clock:    clock,
		builder:  intent.NewBuilder(cfg.Intent, l),
		executor: executor.New(executor.Config{
			SponsorshipEnabled: cfg.SponsorshipEnabled,
			GasBudget:          cfg.GasBudget,
		}, l, sponsor),
		fetcher:   fetcher,
		reducer:   reducer,
		scheduler: poller.NewScheduler(fetcher, reducer, cfg.Intervals, clock),
		resumer:   session.NewResumer(sessions, fetcher, reducer),
		updates:   poller.NewBroadcast(),
	}
}

func (c *Client) Address() string {
	return c.signer.Address()
}

// Subscribe registers an observer for every polled update.
func (c *Client) Subscribe(fn func(poller.Update)) func() {
	return c.updates.Subscribe(fn)
}

// Watch starts polling gameID and publishing to subscribers.
func (c *Client) Watch(ctx context.Context, gameID string, seed game.View) poller.CancelFunc {
	return c.scheduler.Start(ctx, gameID, seed, c.updates.Publish)
}

// Done returns a channel closed once polling of gameID has ended.
func (c *Client) Done(gameID string) <-chan struct{} {
	return c.scheduler.Done(gameID)
}

// View returns the latest polled view of gameID.
func (c *Client) View(gameID string) (game.View, bool) {
	return c.scheduler.Latest(gameID)
}

// Refresh fetches gameID once outside the polling loop.
func (c *Client) Refresh(ctx context.Context, gameID string) (game.View, error) {
	snap, err := c.fetcher.Fetch(ctx, gameID)
	if err != nil {
		return game.View{}, err
	}
	prev, _ := c.scheduler.Latest(gameID)
	view, _ := c.reducer.Reduce(prev, snap)
	return view, nil
}

func (c *Client) execute(ctx context.Context, in tx.Intent) (*executor.Result, error) {
	return c.executor.Execute(ctx, in, c.signer)
}

// Create opens a game in tier, records the session and starts polling it.
func (c *Client) Create(ctx context.Context, tier intent.Tier) (*ActionResult, error) {
	in, err := c.builder.CreateGame(ctx, tier)
	if err != nil {
		return nil, err
	}
	res, err := c.execute(ctx, in)
	if err != nil {
		return nil, err
	}

	gameID := createdGameID(res.Events)
	out := &ActionResult{Digest: res.Digest, Sponsored: res.Sponsored, GameID: gameID}
	if gameID == "" {
		log.Warn().Str("digest", res.Digest).Msg("game created but no GameCreated event in result")
		return out, nil
	}
	if err := c.remember(ctx, gameID, tier); err != nil {
		return out, err
	}
	c.Watch(ctx, gameID, game.View{})
	return out, nil
}

func createdGameID(events []ledger.Event) string {
	for _, ev := range events {
		if strings.HasSuffix(ev.Type, "::GameCreated") {
			if id := gjson.GetBytes(ev.ParsedJSON, "game_id").String(); id != "" {
				return id
			}
		}
	}
	return ""
}

// Join pays the tier's entry fee to enter gameID.
func (c *Client) Join(ctx context.Context, tier intent.Tier, gameID string) (*ActionResult, error) {
	info, err := intent.LookupTier(tier)
	if err != nil {
		return nil, err
	}
	coin, err := c.paymentCoin(ctx, info.Fee)
	if err != nil {
		return nil, err
	}
	in, err := c.builder.JoinGame(ctx, tier, gameID, coin.Ref.ID)
	if err != nil {
		return nil, err
	}
	res, err := c.execute(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := c.remember(ctx, gameID, tier); err != nil {
		return nil, err
	}
	c.Watch(ctx, gameID, game.View{})
	return &ActionResult{Digest: res.Digest, Sponsored: res.Sponsored, GameID: gameID}, nil
}

// paymentCoin picks the smallest coin covering fee, leaving larger coins free
// for gas.
func (c *Client) paymentCoin(ctx context.Context, fee uint64) (ledger.Coin, error) {
	coins, err := c.ledger.GetCoins(ctx, c.signer.Address())
	if err != nil {
		return ledger.Coin{}, fmt.Errorf("failed to list coins: %w", err)
	}
	eligible := slices.DeleteFunc(slices.Clone(coins), func(coin ledger.Coin) bool {
		return coin.Balance < fee
	})
	if len(eligible) == 0 {
		return ledger.Coin{}, fmt.Errorf("%w: need %d", ErrNoPaymentCoin, fee)
	}
	return slices.MinFunc(eligible, func(a, b ledger.Coin) int {
		switch {
		case a.Balance < b.Balance:
			return -1
		case a.Balance > b.Balance:
			return 1
		}
		return 0
	}), nil
}

func (c *Client) remember(ctx context.Context, gameID string, tier intent.Tier) error {
	err := c.sessions.Save(ctx, session.Record{
		GameID:      gameID,
		Tier:        uint8(tier),
		UserAddress: c.signer.Address(),
		JoinedAtMs:  c.clock.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (c *Client) submit(ctx context.Context, gameID string, in tx.Intent) (*ActionResult, error) {
	res, err := c.execute(ctx, in)
	if err != nil {
		return nil, err
	}
	return &ActionResult{Digest: res.Digest, Sponsored: res.Sponsored, GameID: gameID}, nil
}

func (c *Client) Start(ctx context.Context, gameID string) (*ActionResult, error) {
	return c.submit(ctx, gameID, c.builder.StartGame(gameID))
}

func (c *Client) Ask(ctx context.Context, gameID string, q intent.Question, myAnswer uint8) (*ActionResult, error) {
	in, err := c.builder.AskQuestion(gameID, q, myAnswer)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, gameID, in)
}

func (c *Client) Answer(ctx context.Context, gameID string, answer uint8) (*ActionResult, error) {
	in, err := c.builder.SubmitAnswer(gameID, answer)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, gameID, in)
}

func (c *Client) Finalize(ctx context.Context, gameID string) (*ActionResult, error) {
	return c.submit(ctx, gameID, c.builder.FinalizeRound(gameID))
}

func (c *Client) Claim(ctx context.Context, gameID string) (*ActionResult, error) {
	return c.submit(ctx, gameID, c.builder.ClaimPrize(gameID))
}

// Leave stops polling gameID and forgets the session.
func (c *Client) Leave(ctx context.Context, gameID string) error {
	c.scheduler.Stop(gameID)
	return c.sessions.Clear(ctx)
}

// Resume validates a stored session and, if it still holds, restarts polling
// from the freshly fetched view. It returns nil when there is nothing to resume.
func (c *Client) Resume(ctx context.Context) (*session.Resumed, error) {
	res, err := c.resumer.Resume(ctx, c.signer.Address())
	if err != nil || res == nil {
		return nil, err
	}
	c.Watch(ctx, res.Record.GameID, res.View)
	return res, nil
}

// Close stops every polling loop.
func (c *Client) Close() {
	c.scheduler.Close()
}
