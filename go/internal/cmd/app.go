package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/majorityrules/go/internal/client"
	"github.com/mcdev12/majorityrules/go/internal/config"
	"github.com/mcdev12/majorityrules/go/internal/executor"
	"github.com/mcdev12/majorityrules/go/internal/intent"
	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/poller"
	"github.com/mcdev12/majorityrules/go/internal/session"
	"github.com/mcdev12/majorityrules/go/internal/sponsor"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg      *config.Client
	client   *client.Client
	broker   *sponsor.Broker
	sessions *session.LevelDBStore
}

func newApp(cfg *config.Client) (*app, error) {
	if cfg.SignerKey == "" {
		return nil, fmt.Errorf("MR_SIGNER_KEY is required")
	}
	signer, err := tx.NewKeySigner(cfg.SignerKey)
	if err != nil {
		return nil, err
	}

	sessions, err := session.OpenLevelDB(cfg.SessionPath)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	a := &app{cfg: cfg, sessions: sessions}

	var sp executor.Sponsor
	if cfg.Sponsorship.Enabled {
		a.broker = sponsor.NewBroker(sponsor.BrokerConfig{
			URL:       cfg.Sponsorship.URL,
			Timeout:   cfg.Sponsorship.Timeout,
			MaxBudget: cfg.Sponsorship.MaxBudget,
		}, clock)
		sp = a.broker
	}

	lobbies := make(map[intent.Tier]string, len(cfg.Game.Lobbies))
	for tier, id := range cfg.Game.Lobbies {
		lobbies[intent.Tier(tier)] = id
	}

	a.client = client.New(client.Config{
		Intent: intent.Config{
			PackageID:       cfg.Game.PackageID,
			Module:          cfg.Game.Module,
			ClockID:         cfg.Game.ClockID,
			BadgeRegistryID: cfg.Game.BadgeRegistryID,
			TreasuryID:      cfg.Game.TreasuryID,
			Lobbies:         lobbies,
		},
		SponsorshipEnabled: cfg.Sponsorship.Enabled,
		GasBudget:          cfg.GasBudget,
		MinPlayers:         cfg.Game.MinPlayers,
		Intervals: poller.Intervals{
			Waiting:    cfg.Poll.Waiting,
			Active:     cfg.Poll.Active,
			Finalizing: cfg.Poll.Finalizing,
			Finished:   cfg.Poll.Finished,
		},
	}, ledger.NewClient(cfg.LedgerURL), sp, signer, sessions, clock)
	return a, nil
}

func (a *app) Close() {
	a.client.Close()
	_ = a.sessions.Close()
}
