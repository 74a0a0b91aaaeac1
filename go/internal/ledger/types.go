package ledger

import (
	"encoding/json"
	"time"
)

// ObjectRef is a versioned pointer into ledger state. A ref goes stale as soon
// as the object is mutated, so callers re-fetch before reusing one.
type ObjectRef struct {
	ID      string `json:"objectId"`
	Version uint64 `json:"version"`
	Digest  string `json:"digest"`
}

// Object is the raw content of a ledger object. Fields is left undecoded; the
// snapshot package owns interpreting it.
type Object struct {
	Ref    ObjectRef       `json:"ref"`
	Type   string          `json:"type"`
	Fields json.RawMessage `json:"fields"`
}

// Event is an emitted contract event as returned by ledger_queryEvents.
type Event struct {
	Type        string          `json:"type"`
	TxDigest    string          `json:"txDigest"`
	ParsedJSON  json.RawMessage `json:"parsedJson"`
	TimestampMs int64           `json:"timestampMs"`
}

// Timestamp returns the event time, or the zero time when the node omitted it.
func (e Event) Timestamp() time.Time {
	if e.TimestampMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.TimestampMs)
}

// Coin is a fungible balance object owned by an address.
type Coin struct {
	Ref     ObjectRef `json:"ref"`
	Balance uint64    `json:"balance,string"`
}

// EventQuery filters ledger_queryEvents.
type EventQuery struct {
	EventType  string `json:"eventType"`
	Limit      int    `json:"limit,omitempty"`
	Descending bool   `json:"descending,omitempty"`
}

// StatusSuccess is the execution status of a transaction that took effect.
const StatusSuccess = "success"

// ExecuteResult is the ledger's answer to an accepted submission. Status is
// StatusSuccess only when the transaction's effects were applied.
type ExecuteResult struct {
	Digest string  `json:"digest"`
	Status string  `json:"status"`
	Events []Event `json:"events"`
}

// Balance summarises an address' total holdings.
type Balance struct {
	Owner string `json:"owner"`
	Total uint64 `json:"totalBalance,string"`
}
