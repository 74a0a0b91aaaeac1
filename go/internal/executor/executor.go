// Package executor submits game intents, preferring a sponsored dual-signature
// transaction and falling back once to a self-funded one.
package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/sponsor"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

// ErrNoGasCoin means the signer owns no coin that can pay the gas budget.
var ErrNoGasCoin = errors.New("no coin covers the gas budget")

// Sponsor obtains grants. *sponsor.Broker satisfies it.
type Sponsor interface {
	RequestSponsorship(ctx context.Context, in tx.Intent, sender string) (*sponsor.Grant, error)
}

// Ledger is the read/write surface the executor needs.
type Ledger interface {
	GetCoins(ctx context.Context, owner string) ([]ledger.Coin, error)
	ReferenceGasPrice(ctx context.Context) (uint64, error)
	ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (*ledger.ExecuteResult, error)
}

// SubmissionError is a write-path failure surfaced to the caller. It is never
// retried: the action may or may not have taken effect.
type SubmissionError struct {
	Sponsored bool
	Err       error
}

func (e *SubmissionError) Error() string {
	path := "self-funded"
	if e.Sponsored {
		path = "sponsored"
	}
	return fmt.Sprintf("%s submission failed: %v", path, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

type Config struct {
	SponsorshipEnabled bool
	// GasBudget is used for self-funded transactions.
	GasBudget uint64
}

// Result describes an accepted transaction.
type Result struct {
	Digest    string
	Sponsored bool
	Events    []ledger.Event
}

type Executor struct {
	cfg     Config
	ledger  Ledger
	sponsor Sponsor
}

func New(cfg Config, l Ledger, s Sponsor) *Executor {
	return &Executor{cfg: cfg, ledger: l, sponsor: s}
}

// Execute signs and submits in. Failures on the sponsored path before the
// ledger has accepted or definitively rejected the transaction fall back to a
// self-funded submission exactly once.
// A transport error after a sponsored submission is terminal: the outcome is
// unknown, so it is returned as a *SubmissionError without fallback. A
// processed transaction whose status is not success is terminal as well.
func (e *Executor) Execute(ctx context.Context, in tx.Intent, signer tx.Signer) (*Result, error) {
	if e.cfg.SponsorshipEnabled && e.sponsor != nil && !in.SelfFunded {
		res, err := e.executeSponsored(ctx, in, signer)
		if err == nil {
			return res, nil
		}
		var subErr *SubmissionError
		if errors.As(err, &subErr) {
			log.Error().Err(err).Str("target", in.Target).Msg("sponsored submission outcome unknown")
			return nil, err
		}
		log.Warn().Err(err).Str("target", in.Target).Msg("sponsorship failed, paying gas directly")
	}
	return e.executeSelfFunded(ctx, in, signer)
}

// executeSponsored returns a *SubmissionError only when a fallback could
// duplicate the action.
func (e *Executor) executeSponsored(ctx context.Context, in tx.Intent, signer tx.Signer) (*Result, error) {
	grant, err := e.sponsor.RequestSponsorship(ctx, in, signer.Address())
	if err != nil {
		return nil, err
	}
	if !tx.SameAddress(grant.Data.Sender, signer.Address()) {
		return nil, fmt.Errorf("%w: grant issued for %s", sponsor.ErrUnavailable, grant.Data.Sender)
	}

	userSig, err := signer.SignTransaction(ctx, grant.TxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to sign sponsored transaction: %w", err)
	}

	res, err := e.ledger.ExecuteTransaction(ctx, grant.TxBytes, []string{userSig, grant.Signature})
	if err != nil {
		if ledger.IsRejection(err) {
			return nil, fmt.Errorf("ledger rejected sponsored transaction: %w", err)
		}
		return nil, &SubmissionError{Sponsored: true, Err: err}
	}
	if err := checkStatus(res); err != nil {
		return nil, &SubmissionError{Sponsored: true, Err: err}
	}

	log.Info().
		Str("digest", res.Digest).
		Str("target", in.Target).
		Str("sponsor", grant.SponsorAddress).
		Msg("sponsored transaction executed")
	return &Result{Digest: res.Digest, Sponsored: true, Events: res.Events}, nil
}

func (e *Executor) executeSelfFunded(ctx context.Context, in tx.Intent, signer tx.Signer) (*Result, error) {
	res, err := e.submitSelfFunded(ctx, in, signer)
	if err != nil {
		log.Error().Err(err).Str("target", in.Target).Msg("transaction failed")
		return nil, &SubmissionError{Sponsored: false, Err: err}
	}
	log.Info().Str("digest", res.Digest).Str("target", in.Target).Msg("transaction executed")
	return &Result{Digest: res.Digest, Events: res.Events}, nil
}

func (e *Executor) submitSelfFunded(ctx context.Context, in tx.Intent, signer tx.Signer) (*ledger.ExecuteResult, error) {
	coin, err := e.gasCoin(ctx, in, signer.Address())
	if err != nil {
		return nil, err
	}
	price, err := e.ledger.ReferenceGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	txBytes, err := tx.Encode(tx.Data{
		Kind:   in,
		Sender: signer.Address(),
		Gas: tx.GasData{
			Owner:   signer.Address(),
			Payment: []ledger.ObjectRef{coin.Ref},
			Budget:  e.cfg.GasBudget,
			Price:   price,
		},
	})
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignTransaction(ctx, txBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	res, err := e.ledger.ExecuteTransaction(ctx, txBytes, []string{sig})
	if err != nil {
		return nil, err
	}
	if err := checkStatus(res); err != nil {
		return nil, err
	}
	return res, nil
}

// checkStatus rejects results the ledger processed without applying.
func checkStatus(res *ledger.ExecuteResult) error {
	if res.Status != ledger.StatusSuccess {
		return fmt.Errorf("%w: digest %s status %q", ledger.ErrExecutionFailed, res.Digest, res.Status)
	}
	return nil
}

// gasCoin picks the smallest coin that covers the budget and is not an
// argument of the intent itself.
func (e *Executor) gasCoin(ctx context.Context, in tx.Intent, owner string) (ledger.Coin, error) {
	coins, err := e.ledger.GetCoins(ctx, owner)
	if err != nil {
		return ledger.Coin{}, fmt.Errorf("failed to list coins: %w", err)
	}
	used := in.ObjectIDs()
	var best *ledger.Coin
	for i := range coins {
		c := &coins[i]
		if c.Balance < e.cfg.GasBudget || slices.Contains(used, c.Ref.ID) {
			continue
		}
		if best == nil || c.Balance < best.Balance {
			best = c
		}
	}
	if best == nil {
		return ledger.Coin{}, ErrNoGasCoin
	}
	return *best, nil
}
