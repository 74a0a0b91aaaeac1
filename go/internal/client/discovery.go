package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/majorityrules/go/internal/intent"
	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/snapshot"
)

const (
	openGamesScanLimit   = 100
	activeGameScanLimit  = 50
	discoveryConcurrency = 8
)

// GameSummary is a lobby listing entry.
type GameSummary struct {
	GameID      string
	Tier        intent.Tier
	PlayerCount int
	PrizePool   uint64
	CreatedAtMs int64
}

type createdGame struct {
	id          string
	tier        uint64
	createdAtMs int64
}

func (c *Client) recentGames(ctx context.Context, limit int) ([]createdGame, error) {
	events, err := c.ledger.QueryEvents(ctx, ledger.EventQuery{
		EventType:  c.eventType("GameCreated"),
		Limit:      limit,
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query created games: %w", err)
	}
	out := make([]createdGame, 0, len(events))
	for _, ev := range events {
		id := gjson.GetBytes(ev.ParsedJSON, "game_id").String()
		if id == "" {
			continue
		}
		out = append(out, createdGame{
			id:          id,
			tier:        gjson.GetBytes(ev.ParsedJSON, "tier").Uint(),
			createdAtMs: ev.TimestampMs,
		})
	}
	return out, nil
}

func (c *Client) eventType(name string) string {
	module := c.cfg.Intent.Module
	if module == "" {
		module = "battle_royale"
	}
	return fmt.Sprintf("%s::%s::%s", c.cfg.Intent.PackageID, module, name)
}

// fetchAll reads every game concurrently. Games that vanished are skipped;
// any other read error aborts the listing.
func (c *Client) fetchAll(ctx context.Context, games []createdGame) ([]*snapshot.Game, error) {
	snaps := make([]*snapshot.Game, len(games))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoveryConcurrency)
	for i, cg := range games {
		g.Go(func() error {
			snap, err := c.fetcher.Fetch(gctx, cg.id)
			if errors.Is(err, ledger.ErrObjectNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// ListOpenGames returns waiting games of tier, newest first.
func (c *Client) ListOpenGames(ctx context.Context, tier intent.Tier) ([]GameSummary, error) {
	recent, err := c.recentGames(ctx, openGamesScanLimit)
	if err != nil {
		return nil, err
	}
	var candidates []createdGame
	for _, cg := range recent {
		if cg.tier == uint64(tier) {
			candidates = append(candidates, cg)
		}
	}

	snaps, err := c.fetchAll(ctx, candidates)
	if err != nil {
		return nil, err
	}
	var out []GameSummary
	for i, snap := range snaps {
		if snap == nil || snap.Status != snapshot.StatusWaiting {
			continue
		}
		out = append(out, GameSummary{
			GameID:      snap.ID,
			Tier:        tier,
			PlayerCount: len(snap.Players),
			PrizePool:   snap.PrizePool,
			CreatedAtMs: candidates[i].createdAtMs,
		})
	}
	log.Debug().Uint8("tier", uint8(tier)).Int("open", len(out)).Msg("listed open games")
	return out, nil
}

// FindActiveGame returns the newest waiting or active game that lists the
// player, for use when no session is stored.
func (c *Client) FindActiveGame(ctx context.Context) (*GameSummary, error) {
	recent, err := c.recentGames(ctx, activeGameScanLimit)
	if err != nil {
		return nil, err
	}
	snaps, err := c.fetchAll(ctx, recent)
	if err != nil {
		return nil, err
	}
	for i, snap := range snaps {
		if snap == nil || snap.Over() || !snap.HasPlayer(c.signer.Address()) {
			continue
		}
		return &GameSummary{
			GameID:      snap.ID,
			Tier:        intent.Tier(snap.Tier),
			PlayerCount: len(snap.Players),
			PrizePool:   snap.PrizePool,
			CreatedAtMs: recent[i].createdAtMs,
		}, nil
	}
	return nil, nil
}
