package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/majorityrules/go/internal/game"
	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/snapshot"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

// ErrSessionInvalid marks a stored session that no longer matches the ledger.
var ErrSessionInvalid = errors.New("session invalid")

type Fetcher interface {
	Fetch(ctx context.Context, gameID string) (*snapshot.Game, error)
}

type Reducer interface {
	Reduce(prev game.View, snap *snapshot.Game) (game.View, *game.Transition)
}

// Resumed is a validated session with a view seeded from a fresh snapshot.
type Resumed struct {
	Record Record
	View   game.View
}

type Resumer struct {
	store   Store
	fetcher Fetcher
	reducer Reducer
}

func NewResumer(store Store, fetcher Fetcher, reducer Reducer) *Resumer {
	return &Resumer{store: store, fetcher: fetcher, reducer: reducer}
}

// Resume loads the stored session for userAddress and checks it against the
// ledger. It returns nil, nil when there is nothing to resume; an invalid
// session is cleared on the way. A ledger read failure leaves the session in
// place and is returned so the caller can retry later.
func (r *Resumer) Resume(ctx context.Context, userAddress string) (*Resumed, error) {
	rec, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	view, err := r.validate(ctx, *rec, userAddress)
	if err != nil {
		if !errors.Is(err, ErrSessionInvalid) {
			return nil, err
		}
		log.Debug().Err(err).Str("game_id", rec.GameID).Msg("discarding stored session")
		if clearErr := r.store.Clear(ctx); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}

	log.Info().
		Str("game_id", rec.GameID).
		Str("phase", string(view.Phase)).
		Uint64("round", view.Round).
		Msg("resuming session")
	return &Resumed{Record: *rec, View: view}, nil
}

func (r *Resumer) validate(ctx context.Context, rec Record, userAddress string) (game.View, error) {
	if !tx.SameAddress(rec.UserAddress, userAddress) {
		return game.View{}, fmt.Errorf("%w: stored for %s", ErrSessionInvalid, rec.UserAddress)
	}

	snap, err := r.fetcher.Fetch(ctx, rec.GameID)
	if err != nil {
		if errors.Is(err, ledger.ErrObjectNotFound) {
			return game.View{}, fmt.Errorf("%w: game %s not found", ErrSessionInvalid, rec.GameID)
		}
		return game.View{}, fmt.Errorf("failed to fetch game %s: %w", rec.GameID, err)
	}
	if !snap.HasPlayer(userAddress) {
		return game.View{}, fmt.Errorf("%w: no longer a player", ErrSessionInvalid)
	}
	if snap.Over() {
		return game.View{}, fmt.Errorf("%w: game is %s", ErrSessionInvalid, snap.Status)
	}

	view, _ := r.reducer.Reduce(game.View{}, snap)
	return view, nil
}
