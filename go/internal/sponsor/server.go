package sponsor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

var (
	ErrBadRequest       = errors.New("bad sponsorship request")
	ErrTargetNotAllowed = errors.New("target is not sponsorable")
	ErrNoGasCoin        = errors.New("sponsor has no coin covering the gas budget")
)

// unsponsoredFunctions are never paid for by the sponsor.
var unsponsoredFunctions = []string{"claim_prize"}

// Ledger is what the server needs from the chain to build grants.
type Ledger interface {
	GetCoins(ctx context.Context, owner string) ([]ledger.Coin, error)
	GetBalance(ctx context.Context, owner string) (*ledger.Balance, error)
	ReferenceGasPrice(ctx context.Context) (uint64, error)
}

type ServerConfig struct {
	// PackageID restricts sponsorship to calls into the game package.
	PackageID      string
	GasBudget      uint64
	GrantTTL       time.Duration
	Quota          int
	QuotaWindow    time.Duration
	RateLimit      RateLimit
	AllowedOrigins []string
}

type Server struct {
	cfg     ServerConfig
	signer  tx.Signer
	ledger  Ledger
	store   GrantStore
	clock   clockwork.Clock
	metrics *Metrics
	limiter *rateLimiter
}

func NewServer(cfg ServerConfig, signer tx.Signer, l Ledger, store GrantStore, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if store == nil {
		store = NewMemoryGrantStore()
	}
	if cfg.GrantTTL <= 0 {
		cfg.GrantTTL = 2 * time.Minute
	}
	if cfg.QuotaWindow <= 0 {
		cfg.QuotaWindow = time.Hour
	}
	return &Server{
		cfg:     cfg,
		signer:  signer,
		ledger:  l,
		store:   store,
		clock:   clock,
		metrics: NewMetrics(),
		limiter: newRateLimiter(cfg.RateLimit, clock.Now),
	}
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the HTTP surface: /sponsor, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/sponsor", func(sr chi.Router) {
		sr.Use(s.limiter.Middleware)
		sr.Post("/", s.handleSponsor)
		sr.Get("/", s.handleHealth)
	})
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

func (s *Server) handleSponsor(w http.ResponseWriter, r *http.Request) {
	start := s.clock.Now()
	defer func() {
		s.metrics.duration.WithLabelValues(r.Method).Observe(s.clock.Since(start).Seconds())
	}()

	var req SponsorRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.metrics.observeOutcome("bad_request")
		writeJSON(w, http.StatusBadRequest, SponsorResponse{Error: "invalid request body"})
		return
	}

	resp, err := s.Sponsor(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		log.Warn().
			Err(err).
			Str("request_id", r.Header.Get(requestIDHeader)).
			Str("sender", req.SenderAddress).
			Int("status", status).
			Msg("sponsorship refused")
		writeJSON(w, status, SponsorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:         "operational",
		Operational:    true,
		SponsorAddress: s.signer.Address(),
	}
	bal, err := s.ledger.GetBalance(r.Context(), s.signer.Address())
	if err != nil {
		log.Warn().Err(err).Msg("failed to read sponsor balance")
		health.Status = "degraded"
		health.Operational = false
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health.Balance = bal.Total
	if bal.Total < s.cfg.GasBudget {
		health.Status = "insufficient_balance"
		health.Operational = false
	}
	writeJSON(w, http.StatusOK, health)
}

// Sponsor validates a request, attaches the sponsor's gas payment, signs the
// finalized transaction and records the grant.
func (s *Server) Sponsor(ctx context.Context, req SponsorRequest) (*SponsorResponse, error) {
	if !common.IsHexAddress(req.SenderAddress) {
		s.metrics.observeOutcome("bad_request")
		return nil, fmt.Errorf("%w: invalid sender address", ErrBadRequest)
	}
	kind, err := base64.StdEncoding.DecodeString(req.IntentKindBytes)
	if err != nil {
		s.metrics.observeOutcome("bad_request")
		return nil, fmt.Errorf("%w: intent bytes are not base64", ErrBadRequest)
	}
	in, err := tx.DecodeKind(kind)
	if err != nil {
		s.metrics.observeOutcome("bad_request")
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := s.allowed(in); err != nil {
		s.metrics.observeOutcome("not_allowed")
		return nil, err
	}

	coin, err := s.gasCoin(ctx, in)
	if err != nil {
		s.metrics.observeOutcome("no_gas")
		return nil, err
	}
	price, err := s.ledger.ReferenceGasPrice(ctx)
	if err != nil {
		s.metrics.observeOutcome("ledger_error")
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	now := s.clock.Now()
	expires := now.Add(s.cfg.GrantTTL)
	data := tx.Data{
		Kind:   in,
		Sender: tx.NormalizeAddress(req.SenderAddress),
		Gas: tx.GasData{
			Owner:   s.signer.Address(),
			Payment: []ledger.ObjectRef{coin.Ref},
			Budget:  s.cfg.GasBudget,
			Price:   price,
		},
		Expiration: expires.UnixMilli(),
	}
	txBytes, err := tx.Encode(data)
	if err != nil {
		s.metrics.observeOutcome("internal")
		return nil, err
	}
	sig, err := s.signer.SignTransaction(ctx, txBytes)
	if err != nil {
		s.metrics.observeOutcome("internal")
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	rec := GrantRecord{
		ID:        uuid.New(),
		Sender:    data.Sender,
		Target:    in.Target,
		Budget:    s.cfg.GasBudget,
		IssuedAt:  now,
		ExpiresAt: expires,
	}
	if err := s.store.Reserve(ctx, rec, s.cfg.Quota, now.Add(-s.cfg.QuotaWindow)); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			s.metrics.observeOutcome("quota")
		} else {
			s.metrics.observeOutcome("internal")
		}
		return nil, err
	}

	s.metrics.observeGrant(s.cfg.GasBudget)
	log.Info().
		Str("grant_id", rec.ID.String()).
		Str("sender", rec.Sender).
		Str("target", rec.Target).
		Uint64("budget", rec.Budget).
		Msg("sponsorship granted")

	return &SponsorResponse{
		FinalizedBytes:   base64.StdEncoding.EncodeToString(txBytes),
		SponsorSignature: sig,
		SponsorAddress:   s.signer.Address(),
	}, nil
}

func (s *Server) allowed(in tx.Intent) error {
	if s.cfg.PackageID != "" && !tx.SameAddress(in.Package(), s.cfg.PackageID) {
		return fmt.Errorf("%w: package %s", ErrTargetNotAllowed, in.Package())
	}
	if slices.Contains(unsponsoredFunctions, in.Function()) {
		return fmt.Errorf("%w: %s", ErrTargetNotAllowed, in.Function())
	}
	return nil
}

// gasCoin picks the first sponsor coin able to cover the whole budget that the
// intent does not itself reference.
func (s *Server) gasCoin(ctx context.Context, in tx.Intent) (ledger.Coin, error) {
	coins, err := s.ledger.GetCoins(ctx, s.signer.Address())
	if err != nil {
		return ledger.Coin{}, fmt.Errorf("failed to list sponsor coins: %w", err)
	}
	used := in.ObjectIDs()
	for _, c := range coins {
		if c.Balance >= s.cfg.GasBudget && !slices.Contains(used, c.Ref.ID) {
			return c, nil
		}
	}
	return ledger.Coin{}, ErrNoGasCoin
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrTargetNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNoGasCoin):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
