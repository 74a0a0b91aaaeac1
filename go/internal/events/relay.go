package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/majorityrules/go/internal/poller"
)

type Publisher interface {
	Publish(ctx context.Context, ev TransitionEvent) error
}

type RelayConfig struct {
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		QueueSize:  64,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Relay forwards transitions from poll updates to a Publisher on its own
// goroutine so a slow broker never stalls polling.
type Relay struct {
	publisher Publisher
	config    RelayConfig
	clock     clockwork.Clock
	queue     chan TransitionEvent

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRelay(publisher Publisher, cfg RelayConfig, clock clockwork.Clock) *Relay {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultRelayConfig().QueueSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		publisher: publisher,
		config:    cfg,
		clock:     clock,
		queue:     make(chan TransitionEvent, cfg.QueueSize),
		stopChan:  make(chan struct{}),
	}
}

func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("relay already running")
	}
	r.running = true

	r.wg.Add(1)
	go r.run(ctx)
	return nil
}

// Stop waits for the event being published, if any, and drops the rest.
func (r *Relay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return errors.New("relay not running")
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()
	return nil
}

// Observe is a poller observer. Updates without a transition are ignored; a
// full queue drops the event.
func (r *Relay) Observe(u poller.Update) {
	ev, ok := NewTransitionEvent(u)
	if !ok {
		return
	}
	select {
	case r.queue <- ev:
	default:
		log.Warn().Str("game_id", ev.GameID).Str("phase", string(ev.To)).Msg("transition queue full, dropping event")
	}
}

func (r *Relay) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case ev := <-r.queue:
			if err := r.publishWithRetry(ctx, ev); err != nil {
				log.Error().Err(err).Str("game_id", ev.GameID).Str("phase", string(ev.To)).Msg("failed to publish transition")
			}
		}
	}
}

func (r *Relay) publishWithRetry(ctx context.Context, ev TransitionEvent) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.stopChan:
				return lastErr
			case <-r.clock.After(r.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, ev); err != nil {
			lastErr = err
			log.Warn().Err(err).Str("game_id", ev.GameID).Int("attempt", attempt+1).Msg("failed to publish transition, retrying")
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}
