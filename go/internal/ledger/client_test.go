package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newNode(t *testing.T, handle func(call recordedCall) (any, *RPCError)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call recordedCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		result, rpcErr := handle(call)
		resp := map[string]any{"jsonrpc": "2.0", "id": 1}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestGetObject(t *testing.T) {
	c := newNode(t, func(call recordedCall) (any, *RPCError) {
		require.Equal(t, "ledger_getObject", call.Method)
		return map[string]any{
			"ref":    map[string]any{"objectId": "0xgame", "version": 7, "digest": "d1"},
			"type":   "0xpkg::battle_royale::Game",
			"fields": map[string]any{"tier": 1},
		}, nil
	})

	obj, err := c.GetObject(context.Background(), "0xgame")
	require.NoError(t, err)
	require.Equal(t, "0xgame", obj.Ref.ID)
	require.Equal(t, uint64(7), obj.Ref.Version)
	require.JSONEq(t, `{"tier":1}`, string(obj.Fields))
}

func TestGetObjectNotFound(t *testing.T) {
	t.Run("null result", func(t *testing.T) {
		c := newNode(t, func(recordedCall) (any, *RPCError) { return nil, nil })
		_, err := c.GetObject(context.Background(), "0xgone")
		require.ErrorIs(t, err, ErrObjectNotFound)
	})
	t.Run("not found code", func(t *testing.T) {
		c := newNode(t, func(recordedCall) (any, *RPCError) {
			return nil, &RPCError{Code: CodeObjectNotFound, Message: "deleted"}
		})
		_, err := c.GetObject(context.Background(), "0xgone")
		require.ErrorIs(t, err, ErrObjectNotFound)
	})
}

func TestExecuteTransactionRejection(t *testing.T) {
	c := newNode(t, func(call recordedCall) (any, *RPCError) {
		require.Equal(t, "ledger_executeTransaction", call.Method)
		require.Len(t, call.Params, 2)
		var sigs []string
		require.NoError(t, json.Unmarshal(call.Params[1], &sigs))
		require.Equal(t, []string{"user", "sponsor"}, sigs)
		return nil, &RPCError{Code: -32002, Message: "insufficient gas"}
	})

	_, err := c.ExecuteTransaction(context.Background(), []byte("tx"), []string{"user", "sponsor"})
	require.Error(t, err)
	require.True(t, IsRejection(err))
}

func TestTransportErrorIsNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ExecuteTransaction(context.Background(), []byte("tx"), []string{"user"})
	require.Error(t, err)
	require.False(t, IsRejection(err))
}

func TestCoinsAndGasPrice(t *testing.T) {
	c := newNode(t, func(call recordedCall) (any, *RPCError) {
		switch call.Method {
		case "ledger_getCoins":
			return map[string]any{"data": []any{
				map[string]any{"ref": map[string]any{"objectId": "0xc1", "version": 1, "digest": "a"}, "balance": "500"},
			}}, nil
		case "ledger_getReferenceGasPrice":
			return "1000", nil
		}
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})

	coins, err := c.GetCoins(context.Background(), "0xuser")
	require.NoError(t, err)
	require.Len(t, coins, 1)
	require.Equal(t, uint64(500), coins[0].Balance)

	price, err := c.ReferenceGasPrice(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1000), price)
}
