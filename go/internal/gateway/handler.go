package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/majorityrules/go/internal/game"
	"github.com/mcdev12/majorityrules/go/internal/ledger"
)

// ViewSource supplies views. *client.Client satisfies it.
type ViewSource interface {
	View(gameID string) (game.View, bool)
	Refresh(ctx context.Context, gameID string) (game.View, error)
}

type Handler struct {
	connections *ConnectionManager
	views       ViewSource
	origins     []string
}

func NewHandler(cm *ConnectionManager, views ViewSource, allowedOrigins []string) *Handler {
	return &Handler{connections: cm, views: views, origins: allowedOrigins}
}

// Routes returns the gateway's HTTP surface wrapped in CORS.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/game", h.HandleGameConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("GET /api/games/{id}/view", h.HandleView)

	origins := h.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}).Handler(mux)
}

// HandleGameConnection upgrades /ws/game?game_id=... and sends the latest
// known view first.
func (h *Handler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		http.Error(w, "game_id is required", http.StatusBadRequest)
		return
	}

	var initial *game.View
	if v, ok := h.views.View(gameID); ok {
		initial = &v
	}
	if err := h.connections.UpgradeConnection(w, r, gameID, initial); err != nil {
		// The upgrader has already replied to the client.
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to upgrade WebSocket connection")
	}
}

func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	view, ok := h.views.View(gameID)
	if !ok {
		var err error
		view, err = h.views.Refresh(r.Context(), gameID)
		switch {
		case errors.Is(err, ledger.ErrObjectNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "game not found"})
			return
		case err != nil:
			log.Warn().Err(err).Str("game_id", gameID).Msg("failed to refresh view")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "ledger unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connections.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
