// Command majority-rules plays Majority Rules from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/majorityrules/go/internal/client"
	"github.com/mcdev12/majorityrules/go/internal/config"
	"github.com/mcdev12/majorityrules/go/internal/events"
	"github.com/mcdev12/majorityrules/go/internal/game"
	"github.com/mcdev12/majorityrules/go/internal/gateway"
	"github.com/mcdev12/majorityrules/go/internal/intent"
	"github.com/mcdev12/majorityrules/go/internal/logging"
	"github.com/mcdev12/majorityrules/go/internal/poller"
)

const usage = `usage: majority-rules [-config file] <command> [flags]

commands:
  tiers                       list stake tiers
  list     -tier N            list open games
  create   -tier N            open a new game
  join     -tier N -game ID   join a game
  start    -game ID
  ask      -game ID -q TEXT -a A -b B -c C -answer N
  answer   -game ID -option N
  finalize -game ID
  claim    -game ID
  leave    -game ID           stop tracking a game
  status   -game ID           print the current view once
  watch    [-game ID] [-serve]
  sponsor-health`

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty, os.Stderr); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		pterm.Error.Println(err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Client, cmd string, args []string) error {
	if cmd == "tiers" {
		return renderTiers()
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	gameID := fs.String("game", "", "game object id")
	tierName := fs.String("tier", "1", "tier number or name")

	switch cmd {
	case "list":
		if err := fs.Parse(args); err != nil {
			return err
		}
		tier, err := intent.ParseTier(*tierName)
		if err != nil {
			return err
		}
		games, err := a.client.ListOpenGames(ctx, tier)
		if err != nil {
			return err
		}
		return renderGames(games)

	case "create":
		if err := fs.Parse(args); err != nil {
			return err
		}
		tier, err := intent.ParseTier(*tierName)
		if err != nil {
			return err
		}
		res, err := a.client.Create(ctx, tier)
		if err != nil {
			return err
		}
		renderAction("create_game", res)
		return nil

	case "join":
		if err := parseWithGame(fs, args, gameID); err != nil {
			return err
		}
		tier, err := intent.ParseTier(*tierName)
		if err != nil {
			return err
		}
		res, err := a.client.Join(ctx, tier, *gameID)
		if err != nil {
			return err
		}
		renderAction("join_game", res)
		return nil

	case "start", "finalize", "claim":
		if err := parseWithGame(fs, args, gameID); err != nil {
			return err
		}
		act := map[string]func(context.Context, string) (*client.ActionResult, error){
			"start":    a.client.Start,
			"finalize": a.client.Finalize,
			"claim":    a.client.Claim,
		}[cmd]
		res, err := act(ctx, *gameID)
		if err != nil {
			return err
		}
		renderAction(cmd, res)
		return nil

	case "ask":
		text := fs.String("q", "", "question text")
		optA := fs.String("a", "", "option 1")
		optB := fs.String("b", "", "option 2")
		optC := fs.String("c", "", "option 3")
		answer := fs.Uint("answer", 0, "your own answer (1-3)")
		if err := parseWithGame(fs, args, gameID); err != nil {
			return err
		}
		res, err := a.client.Ask(ctx, *gameID, intent.Question{
			Text: *text, OptionA: *optA, OptionB: *optB, OptionC: *optC,
		}, uint8(*answer))
		if err != nil {
			return err
		}
		renderAction("ask_question", res)
		return nil

	case "answer":
		option := fs.Uint("option", 0, "option (1-3)")
		if err := parseWithGame(fs, args, gameID); err != nil {
			return err
		}
		res, err := a.client.Answer(ctx, *gameID, uint8(*option))
		if err != nil {
			return err
		}
		renderAction("submit_answer", res)
		return nil

	case "leave":
		if err := parseWithGame(fs, args, gameID); err != nil {
			return err
		}
		if err := a.client.Leave(ctx, *gameID); err != nil {
			return err
		}
		pterm.Success.Printfln("left %s", *gameID)
		return nil

	case "status":
		if err := parseWithGame(fs, args, gameID); err != nil {
			return err
		}
		view, err := a.client.Refresh(ctx, *gameID)
		if err != nil {
			return err
		}
		renderView(view, time.Now())
		return nil

	case "watch":
		serve := fs.Bool("serve", false, "serve views to a local UI on the gateway address")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return watch(ctx, a, *gameID, *serve)

	case "sponsor-health":
		if a.broker == nil {
			return errors.New("sponsorship is disabled")
		}
		health, err := a.broker.Health(ctx)
		if err != nil {
			return err
		}
		pterm.Info.Printfln("sponsor %s status=%s operational=%t balance=%d",
			health.SponsorAddress, health.Status, health.Operational, health.Balance)
		return nil
	}

	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func parseWithGame(fs *flag.FlagSet, args []string, gameID *string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *gameID == "" {
		return errors.New("-game is required")
	}
	return nil
}

// watch follows one game until it finishes or the process is interrupted.
// Without -game it resumes the stored session, then looks for a recent game
// that lists the player.
func watch(ctx context.Context, a *app, gameID string, serve bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var once sync.Once
	unsubscribe := a.client.Subscribe(func(u poller.Update) {
		renderUpdate(u)
		if u.View.Phase == game.PhaseFinished {
			once.Do(cancel)
		}
	})
	defer unsubscribe()

	if a.cfg.NATSURL != "" {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = a.cfg.NATSURL
		publisher, err := events.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		relay := events.NewRelay(publisher, events.DefaultRelayConfig(), nil)
		if err := relay.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = relay.Stop() }()
		defer a.client.Subscribe(relay.Observe)()
	}

	if serve {
		cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
		go cm.Start(ctx)
		defer a.client.Subscribe(cm.Observe)()

		srv := &http.Server{
			Addr:              a.cfg.GatewayAddr,
			Handler:           gateway.NewHandler(cm, a.client, nil).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", a.cfg.GatewayAddr).Msg("gateway listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("gateway failed")
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	followed, err := follow(ctx, a, gameID)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-a.client.Done(followed):
		pterm.Info.Printfln("stopped following game %s", followed)
	}
	return nil
}

// follow starts polling a game and returns its id.
func follow(ctx context.Context, a *app, gameID string) (string, error) {
	if gameID != "" {
		a.client.Watch(ctx, gameID, game.View{})
		return gameID, nil
	}

	resumed, err := a.client.Resume(ctx)
	if err != nil {
		return "", err
	}
	if resumed != nil {
		pterm.Info.Printfln("resumed game %s", resumed.Record.GameID)
		return resumed.Record.GameID, nil
	}

	found, err := a.client.FindActiveGame(ctx)
	if err != nil {
		return "", err
	}
	if found == nil {
		return "", errors.New("no game to watch: pass -game or join one")
	}
	pterm.Info.Printfln("found game %s", found.GameID)
	a.client.Watch(ctx, found.GameID, game.View{})
	return found.GameID, nil
}
