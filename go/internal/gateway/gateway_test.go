package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/majorityrules/go/internal/game"
	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/poller"
)

type fakeViews struct {
	mu      sync.Mutex
	latest  map[string]game.View
	fetched map[string]game.View
}

func (f *fakeViews) View(gameID string) (game.View, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.latest[gameID]
	return v, ok
}

func (f *fakeViews) Refresh(_ context.Context, gameID string) (game.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gameID == "0xbroken" {
		return game.View{}, fmt.Errorf("dial tcp: connection refused")
	}
	v, ok := f.fetched[gameID]
	if !ok {
		return game.View{}, fmt.Errorf("%w: %s", ledger.ErrObjectNotFound, gameID)
	}
	return v, nil
}

func setup(t *testing.T) (*ConnectionManager, *httptest.Server) {
	t.Helper()
	views := &fakeViews{
		latest:  map[string]game.View{"0xgame": {GameID: "0xgame", Phase: game.PhaseWaiting, PlayerCount: 2}},
		fetched: map[string]game.View{"0xcold": {GameID: "0xcold", Phase: game.PhaseQuestion}},
	}
	cm := NewConnectionManager(DefaultConnectionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	srv := httptest.NewServer(NewHandler(cm, views, nil).Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return cm, srv
}

func dial(t *testing.T, srv *httptest.Server, gameID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/game?game_id=" + gameID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitConnections(t *testing.T, cm *ConnectionManager, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cm.Stats().TotalConnections == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStreamSendsLatestViewThenUpdates(t *testing.T) {
	cm, srv := setup(t)
	conn := dial(t, srv, "0xgame")

	first := readMessage(t, conn)
	require.Equal(t, MessageView, first.Type)
	require.Equal(t, 2, first.View.PlayerCount)

	waitConnections(t, cm, 1)
	cm.Observe(poller.Update{
		View:       game.View{GameID: "0xgame", Phase: game.PhaseQuestion, Round: 1},
		Transition: &game.Transition{GameID: "0xgame", From: game.PhaseWaiting, To: game.PhaseQuestion, Round: 1},
	})

	next := readMessage(t, conn)
	require.Equal(t, game.PhaseQuestion, next.View.Phase)
	require.NotNil(t, next.Transition)
	require.Equal(t, game.PhaseWaiting, next.Transition.From)
}

func TestUpdatesOnlyReachWatchersOfThatGame(t *testing.T) {
	cm, srv := setup(t)
	other := dial(t, srv, "0xother")
	watcher := dial(t, srv, "0xgame")
	readMessage(t, watcher)
	waitConnections(t, cm, 2)

	cm.Observe(poller.Update{View: game.View{GameID: "0xgame", Phase: game.PhaseAnswer}})
	require.Equal(t, game.PhaseAnswer, readMessage(t, watcher).View.Phase)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	require.Error(t, err)
}

func TestDisconnectUnregisters(t *testing.T) {
	cm, srv := setup(t)
	conn := dial(t, srv, "0xgame")
	waitConnections(t, cm, 1)

	require.Equal(t, 1, cm.Stats().GameConnections["0xgame"])
	require.NoError(t, conn.Close())
	waitConnections(t, cm, 0)
	require.Zero(t, cm.Stats().ActiveGames)
}

func TestGameIDRequired(t *testing.T) {
	_, srv := setup(t)

	resp, err := http.Get(srv.URL + "/ws/game")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestViewEndpoint(t *testing.T) {
	_, srv := setup(t)

	tests := []struct {
		gameID string
		status int
		phase  game.Phase
	}{
		{"0xgame", http.StatusOK, game.PhaseWaiting},
		{"0xcold", http.StatusOK, game.PhaseQuestion},
		{"0xmissing", http.StatusNotFound, ""},
		{"0xbroken", http.StatusBadGateway, ""},
	}
	for _, tt := range tests {
		t.Run(tt.gameID, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/api/games/" + tt.gameID + "/view")
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.status != http.StatusOK {
				return
			}
			var v game.View
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
			require.Equal(t, tt.phase, v.Phase)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	_, srv := setup(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/games/0xgame/view", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
