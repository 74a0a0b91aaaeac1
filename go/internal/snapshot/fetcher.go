package snapshot

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/majorityrules/go/internal/ledger"
)

// ObjectReader is the single ledger call a fetch needs.
type ObjectReader interface {
	GetObject(ctx context.Context, id string) (*ledger.Object, error)
}

type Fetcher struct {
	ledger ObjectReader
}

func NewFetcher(l ObjectReader) *Fetcher {
	return &Fetcher{ledger: l}
}

// Fetch reads and decodes the game object. It returns ledger.ErrObjectNotFound
// (wrapped) when the object does not exist; decode problems are attached to
// the result, not returned.
func (f *Fetcher) Fetch(ctx context.Context, gameID string) (*Game, error) {
	obj, err := f.ledger.GetObject(ctx, gameID)
	if err != nil {
		return nil, err
	}
	g := Decode(gameID, obj.Ref.Version, obj.Fields)
	for _, p := range g.Problems {
		log.Debug().Str("game_id", gameID).Str("field", p.Field).Str("reason", p.Reason).Msg("snapshot decode problem")
	}
	return &g, nil
}
