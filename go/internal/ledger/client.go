package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client talks JSON-RPC 2.0 to a ledger full node.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
	nextID  atomic.Int64
}

// NewClient creates a ledger client for the given node URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one JSON-RPC round trip. Transport failures are returned
// wrapped; node-side refusals come back as *RPCError.
func (c *Client) call(ctx context.Context, method string, out any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make %s request: %w", method, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ledger returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	var decoded rpcResponse
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return errEmptyResult
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

var errEmptyResult = errors.New("empty result")

// GetObject fetches the current content of an object.
func (c *Client) GetObject(ctx context.Context, id string) (*Object, error) {
	var obj Object
	err := c.call(ctx, "ledger_getObject", &obj, id)
	if err != nil {
		var rpcErr *RPCError
		if errors.Is(err, errEmptyResult) || (errors.As(err, &rpcErr) && rpcErr.Code == CodeObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
		}
		return nil, err
	}
	return &obj, nil
}

// QueryEvents lists events of one type.
func (c *Client) QueryEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	var page struct {
		Data []Event `json:"data"`
	}
	if err := c.call(ctx, "ledger_queryEvents", &page, q); err != nil {
		if errors.Is(err, errEmptyResult) {
			return nil, nil
		}
		return nil, err
	}
	return page.Data, nil
}

// GetCoins lists the coins owned by an address.
func (c *Client) GetCoins(ctx context.Context, owner string) ([]Coin, error) {
	var page struct {
		Data []Coin `json:"data"`
	}
	if err := c.call(ctx, "ledger_getCoins", &page, owner); err != nil {
		if errors.Is(err, errEmptyResult) {
			return nil, nil
		}
		return nil, err
	}
	return page.Data, nil
}

// GetBalance returns the total balance of an address.
func (c *Client) GetBalance(ctx context.Context, owner string) (*Balance, error) {
	var bal Balance
	if err := c.call(ctx, "ledger_getBalance", &bal, owner); err != nil {
		return nil, err
	}
	return &bal, nil
}

// ReferenceGasPrice returns the price per resource unit the node currently quotes.
func (c *Client) ReferenceGasPrice(ctx context.Context) (uint64, error) {
	var price json.Number
	if err := c.call(ctx, "ledger_getReferenceGasPrice", &price); err != nil {
		return 0, err
	}
	v, err := price.Int64()
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid reference gas price %q", price)
	}
	return uint64(v), nil
}

// ExecuteTransaction submits signed transaction bytes. One signature means the
// sender pays; two means [sender, sponsor].
func (c *Client) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (*ExecuteResult, error) {
	var res ExecuteResult
	encoded := base64.StdEncoding.EncodeToString(txBytes)
	if err := c.call(ctx, "ledger_executeTransaction", &res, encoded, signatures); err != nil {
		return nil, err
	}
	return &res, nil
}
