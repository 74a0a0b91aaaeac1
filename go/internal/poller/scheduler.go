// Package poller keeps game views fresh by polling the ledger at a cadence
// chosen from the current phase.
package poller

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/majorityrules/go/internal/game"
	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/snapshot"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

type Fetcher interface {
	Fetch(ctx context.Context, gameID string) (*snapshot.Game, error)
}

type Reducer interface {
	Reduce(prev game.View, snap *snapshot.Game) (game.View, *game.Transition)
}

// Update is delivered to observers after each successful poll cycle.
type Update struct {
	View       game.View
	Transition *game.Transition
}

// CancelFunc stops a polling loop. It is safe to call more than once and after
// the loop has finished on its own. Once it returns no callback for that loop
// is running or will start; results of fetches still in flight are discarded.
type CancelFunc func()

type Scheduler struct {
	fetcher   Fetcher
	reducer   Reducer
	intervals Intervals
	clock     Clock

	loopsMu sync.Mutex
	loops   map[string]*loop

	// Track in-flight cycles per loop to prevent overlapping polls
	inFlight   map[*loop]bool
	inFlightMu sync.Mutex
}

func NewScheduler(fetcher Fetcher, reducer Reducer, intervals Intervals, clock Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		fetcher:   fetcher,
		reducer:   reducer,
		intervals: intervals,
		clock:     clock,
		loops:     make(map[string]*loop),
		inFlight:  make(map[*loop]bool),
	}
}

type loop struct {
	gameID   string
	onUpdate func(Update)
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	cancelled bool
	view      game.View

	// deliverMu is held while onUpdate runs; cancel waits on it so no
	// callback starts or runs on after cancel returns.
	deliverMu sync.Mutex
	// deliverer is the id of the goroutine running onUpdate, 0 when idle.
	deliverer atomic.Uint64
}

// Start begins polling gameID, seeding the reducer with seed (which may be the
// zero View). The first cycle runs immediately. Starting a game that is
// already being polled replaces the previous loop.
func (s *Scheduler) Start(ctx context.Context, gameID string, seed game.View, onUpdate func(Update)) CancelFunc {
	l := &loop{
		gameID:   gameID,
		onUpdate: onUpdate,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		view:     seed,
	}

	s.loopsMu.Lock()
	existing, replaced := s.loops[gameID]
	s.loops[gameID] = l
	s.loopsMu.Unlock()
	if replaced {
		existing.cancel()
		log.Debug().Str("game_id", gameID).Msg("replaced existing polling loop")
	}

	go s.run(ctx, l)

	log.Info().
		Str("game_id", gameID).
		Str("phase", string(seed.Phase)).
		Msg("polling started")
	return l.cancel
}

// Stop cancels the loop for gameID, if any.
func (s *Scheduler) Stop(gameID string) {
	s.loopsMu.Lock()
	l, ok := s.loops[gameID]
	delete(s.loops, gameID)
	s.loopsMu.Unlock()
	if ok {
		l.cancel()
	}
}

// Close cancels every loop.
func (s *Scheduler) Close() {
	s.loopsMu.Lock()
	loops := s.loops
	s.loops = make(map[string]*loop)
	s.loopsMu.Unlock()
	for _, l := range loops {
		l.cancel()
	}
}

// Latest returns the most recent view produced for gameID.
func (s *Scheduler) Latest(gameID string) (game.View, bool) {
	s.loopsMu.Lock()
	l, ok := s.loops[gameID]
	s.loopsMu.Unlock()
	if !ok {
		return game.View{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view, !l.view.IsZero()
}

// Done returns a channel closed when the loop for gameID ends, whether it
// completed, lost its game or was cancelled. It is already closed when no
// loop exists.
func (s *Scheduler) Done(gameID string) <-chan struct{} {
	s.loopsMu.Lock()
	l, ok := s.loops[gameID]
	s.loopsMu.Unlock()
	if !ok {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return l.done
}

// Active reports whether a loop for gameID is still polling.
func (s *Scheduler) Active(gameID string) bool {
	s.loopsMu.Lock()
	l, ok := s.loops[gameID]
	s.loopsMu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *loop) cancel() {
	l.mu.Lock()
	l.cancelled = true
	l.mu.Unlock()
	l.stopOnce.Do(func() { close(l.stop) })

	// Wait out a delivery in progress, unless cancel is called from it.
	if l.deliverer.Load() != goroutineID() {
		l.deliverMu.Lock()
		l.deliverMu.Unlock()
	}
}

func (l *loop) currentPhase() game.Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.Phase
}

func (s *Scheduler) run(ctx context.Context, l *loop) {
	defer func() {
		close(l.done)
		s.loopsMu.Lock()
		if s.loops[l.gameID] == l {
			delete(s.loops, l.gameID)
		}
		s.loopsMu.Unlock()
	}()

	finished := make(chan struct{}, 1)
	s.tick(ctx, l, finished)

	for {
		select {
		case <-finished:
			log.Info().Str("game_id", l.gameID).Msg("polling completed")
			return
		default:
		}

		// Interval is read at tick time so a phase change applies from the next tick
		interval := s.intervals.For(l.currentPhase())
		if interval <= 0 {
			interval = s.intervals.Waiting
		}
		timer := s.clock.NewTimer(interval)

		select {
		case <-l.stop:
			stopAndDrainTimer(timer)
			return
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return
		case <-finished:
			stopAndDrainTimer(timer)
			log.Info().Str("game_id", l.gameID).Msg("polling completed")
			return
		case <-timer.Chan():
			s.tick(ctx, l, finished)
		}
	}
}

// tick launches one poll cycle unless the previous one is still running.
func (s *Scheduler) tick(ctx context.Context, l *loop, finished chan<- struct{}) {
	if !s.acquire(l) {
		log.Debug().Str("game_id", l.gameID).Msg("previous poll still in flight, skipping tick")
		return
	}
	go func() {
		defer s.release(l)
		if s.cycle(ctx, l) {
			select {
			case finished <- struct{}{}:
			default:
			}
		}
	}()
}

// cycle performs one fetch and reduce. It reports whether polling should end.
// The fetch runs on the parent context and is not aborted by cancel; its
// result is dropped if the loop was cancelled meanwhile.
func (s *Scheduler) cycle(ctx context.Context, l *loop) bool {
	snap, err := s.fetcher.Fetch(ctx, l.gameID)
	if err != nil {
		if errors.Is(err, ledger.ErrObjectNotFound) {
			log.Warn().Str("game_id", l.gameID).Msg("game no longer exists, stopping poll")
			return true
		}
		log.Warn().Err(err).Str("game_id", l.gameID).Msg("poll failed, keeping last view")
		return false
	}

	l.mu.Lock()
	if l.cancelled {
		l.mu.Unlock()
		return true
	}
	view, tr := s.reducer.Reduce(l.view, snap)
	l.view = view
	l.mu.Unlock()

	if tr != nil {
		log.Info().
			Str("game_id", l.gameID).
			Str("from", string(tr.From)).
			Str("to", string(tr.To)).
			Uint64("round", tr.Round).
			Msg("phase transition")
	}

	if !l.deliver(Update{View: view, Transition: tr}) {
		return true
	}
	return view.Phase == game.PhaseFinished && s.intervals.For(game.PhaseFinished) <= 0
}

// deliver hands u to the observer unless the loop has been cancelled. It runs
// under deliverMu, which cancel also waits on, so once cancel returns no
// callback is running or will start. The callback may itself call cancel.
func (l *loop) deliver(u Update) bool {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()

	l.mu.Lock()
	cancelled := l.cancelled
	l.mu.Unlock()
	if cancelled {
		return false
	}
	if l.onUpdate != nil {
		l.deliverer.Store(goroutineID())
		defer l.deliverer.Store(0)
		l.onUpdate(u)
	}
	return true
}

func (s *Scheduler) acquire(l *loop) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[l] {
		return false
	}
	s.inFlight[l] = true
	return true
}

func (s *Scheduler) release(l *loop) {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	delete(s.inFlight, l)
}

// goroutineID parses the current goroutine's id from its stack header,
// "goroutine 42 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent goroutine leaks.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
