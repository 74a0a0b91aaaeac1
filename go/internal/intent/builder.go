// Package intent turns game actions into unsigned contract-call intents.
package intent

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

const (
	// ClockObjectID is the ledger's shared system clock.
	ClockObjectID = "0x0000000000000000000000000000000000000000000000000000000000000006"

	MaxQuestionLength = 50
)

// EventSource is the slice of the ledger client the builder needs.
type EventSource interface {
	QueryEvents(ctx context.Context, q ledger.EventQuery) ([]ledger.Event, error)
}

type Config struct {
	PackageID string
	Module    string
	ClockID   string
	// BadgeRegistryID is passed to finalize_round when set.
	BadgeRegistryID string
	// TreasuryID and Lobbies short-circuit event lookups when known up front.
	TreasuryID string
	Lobbies    map[Tier]string
}

// Question is the text and three options an asker submits.
type Question struct {
	Text    string
	OptionA string
	OptionB string
	OptionC string
}

func (q Question) validate() error {
	fields := map[string]string{"question": q.Text, "option a": q.OptionA, "option b": q.OptionB, "option c": q.OptionC}
	for name, v := range fields {
		if v == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidQuestion, name)
		}
		if utf8.RuneCountInString(v) > MaxQuestionLength {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidQuestion, name, MaxQuestionLength)
		}
	}
	return nil
}

func validateAnswer(a uint8) error {
	if a < 1 || a > 3 {
		return ErrInvalidAnswer
	}
	return nil
}

// Builder builds intents for every game action. Lobby and treasury ids are
// resolved lazily and cached for the life of the process.
type Builder struct {
	cfg    Config
	events EventSource

	mu       sync.RWMutex
	lobbies  map[Tier]string
	treasury string
	group    singleflight.Group
}

func NewBuilder(cfg Config, events EventSource) *Builder {
	if cfg.Module == "" {
		cfg.Module = "battle_royale"
	}
	if cfg.ClockID == "" {
		cfg.ClockID = ClockObjectID
	}
	lobbies := make(map[Tier]string, len(cfg.Lobbies))
	for t, id := range cfg.Lobbies {
		if id != "" {
			lobbies[t] = id
		}
	}
	return &Builder{
		cfg:      cfg,
		events:   events,
		lobbies:  lobbies,
		treasury: cfg.TreasuryID,
	}
}

func (b *Builder) target(fn string) string {
	return fmt.Sprintf("%s::%s::%s", b.cfg.PackageID, b.cfg.Module, fn)
}

func (b *Builder) eventType(name string) string {
	return b.target(name)
}

// CreateGame opens a new game in the tier's lobby.
func (b *Builder) CreateGame(ctx context.Context, tier Tier) (tx.Intent, error) {
	lobby, err := b.Lobby(ctx, tier)
	if err != nil {
		return tx.Intent{}, err
	}
	return tx.Intent{
		Target:    b.target("create_game"),
		Arguments: []tx.Argument{tx.Object(lobby), tx.Object(b.cfg.ClockID)},
	}, nil
}

// JoinGame enters gameID, paying the entry fee from paymentCoinID.
func (b *Builder) JoinGame(ctx context.Context, tier Tier, gameID, paymentCoinID string) (tx.Intent, error) {
	if paymentCoinID == "" {
		return tx.Intent{}, fmt.Errorf("join requires a payment coin")
	}
	lobby, err := b.Lobby(ctx, tier)
	if err != nil {
		return tx.Intent{}, err
	}
	treasury, err := b.Treasury(ctx)
	if err != nil {
		return tx.Intent{}, err
	}
	return tx.Intent{
		Target: b.target("join_game"),
		Arguments: []tx.Argument{
			tx.Object(lobby),
			tx.Object(gameID),
			tx.Object(treasury),
			tx.Object(paymentCoinID),
			tx.Object(b.cfg.ClockID),
		},
	}, nil
}

func (b *Builder) StartGame(gameID string) tx.Intent {
	return tx.Intent{
		Target:    b.target("start_game"),
		Arguments: []tx.Argument{tx.Object(gameID), tx.Object(b.cfg.ClockID)},
	}
}

// AskQuestion records the asker's question together with their own answer.
func (b *Builder) AskQuestion(gameID string, q Question, myAnswer uint8) (tx.Intent, error) {
	if err := q.validate(); err != nil {
		return tx.Intent{}, err
	}
	if err := validateAnswer(myAnswer); err != nil {
		return tx.Intent{}, err
	}
	return tx.Intent{
		Target: b.target("ask_question"),
		Arguments: []tx.Argument{
			tx.Object(gameID),
			tx.String(q.Text),
			tx.String(q.OptionA),
			tx.String(q.OptionB),
			tx.String(q.OptionC),
			tx.U8(myAnswer),
			tx.Object(b.cfg.ClockID),
		},
	}, nil
}

func (b *Builder) SubmitAnswer(gameID string, answer uint8) (tx.Intent, error) {
	if err := validateAnswer(answer); err != nil {
		return tx.Intent{}, err
	}
	return tx.Intent{
		Target:    b.target("submit_answer"),
		Arguments: []tx.Argument{tx.Object(gameID), tx.U8(answer), tx.Object(b.cfg.ClockID)},
	}, nil
}

func (b *Builder) FinalizeRound(gameID string) tx.Intent {
	args := []tx.Argument{tx.Object(gameID)}
	if b.cfg.BadgeRegistryID != "" {
		args = append(args, tx.Object(b.cfg.BadgeRegistryID))
	}
	args = append(args, tx.Object(b.cfg.ClockID))
	return tx.Intent{Target: b.target("finalize_round"), Arguments: args}
}

// ClaimPrize pays out the winner. It is always funded by the caller.
func (b *Builder) ClaimPrize(gameID string) tx.Intent {
	return tx.Intent{
		Target:     b.target("claim_prize"),
		Arguments:  []tx.Argument{tx.Object(gameID)},
		SelfFunded: true,
	}
}

// Lobby returns the shared lobby object for tier.
func (b *Builder) Lobby(ctx context.Context, tier Tier) (string, error) {
	if _, err := LookupTier(tier); err != nil {
		return "", &ResolutionError{Object: "lobby", Tier: tier, Err: err}
	}

	b.mu.RLock()
	id, ok := b.lobbies[tier]
	b.mu.RUnlock()
	if ok {
		return id, nil
	}

	_, err, _ := b.group.Do("lobbies", func() (any, error) {
		return nil, b.loadLobbies(ctx)
	})
	if err != nil {
		return "", &ResolutionError{Object: "lobby", Tier: tier, Err: err}
	}

	b.mu.RLock()
	id, ok = b.lobbies[tier]
	b.mu.RUnlock()
	if !ok {
		return "", &ResolutionError{Object: "lobby", Tier: tier}
	}
	return id, nil
}

func (b *Builder) loadLobbies(ctx context.Context) error {
	events, err := b.events.QueryEvents(ctx, ledger.EventQuery{EventType: b.eventType("TierLobbyCreated")})
	if err != nil {
		return fmt.Errorf("failed to query lobby events: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range events {
		tier := gjson.GetBytes(ev.ParsedJSON, "tier").Uint()
		lobbyID := gjson.GetBytes(ev.ParsedJSON, "lobby_id").String()
		if tier == 0 || tier > 255 || lobbyID == "" {
			continue
		}
		if _, known := b.lobbies[Tier(tier)]; !known {
			b.lobbies[Tier(tier)] = lobbyID
		}
	}
	log.Debug().Int("events", len(events)).Int("lobbies", len(b.lobbies)).Msg("resolved tier lobbies")
	return nil
}

// Treasury returns the platform treasury that collects entry fees.
func (b *Builder) Treasury(ctx context.Context) (string, error) {
	b.mu.RLock()
	id := b.treasury
	b.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	v, err, _ := b.group.Do("treasury", func() (any, error) {
		events, err := b.events.QueryEvents(ctx, ledger.EventQuery{EventType: b.eventType("TreasuryCreated"), Limit: 1})
		if err != nil {
			return "", fmt.Errorf("failed to query treasury events: %w", err)
		}
		for _, ev := range events {
			if tid := gjson.GetBytes(ev.ParsedJSON, "treasury_id").String(); tid != "" {
				return tid, nil
			}
		}
		return "", nil
	})
	if err != nil {
		return "", &ResolutionError{Object: "treasury", Err: err}
	}
	id = v.(string)
	if id == "" {
		return "", &ResolutionError{Object: "treasury"}
	}

	b.mu.Lock()
	b.treasury = id
	b.mu.Unlock()
	return id, nil
}

// ParseTier accepts the decimal tier number used on the command line.
func ParseTier(s string) (Tier, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid tier %q: %w", s, err)
	}
	t := Tier(n)
	if _, err := LookupTier(t); err != nil {
		return 0, err
	}
	return t, nil
}
