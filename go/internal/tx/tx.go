// Package tx models the transaction payloads exchanged between the client, the
// sponsor and the ledger. Finalized transaction bytes are the unit both parties
// sign; they are never re-encoded after the sponsor produces them.
package tx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/majorityrules/go/internal/ledger"
)

// ArgKind says how the ledger should interpret an argument value.
type ArgKind string

const (
	ArgObject ArgKind = "object"
	ArgPure   ArgKind = "pure"
)

// Argument is one positional parameter of a contract call.
type Argument struct {
	Kind  ArgKind `json:"kind"`
	Type  string  `json:"type,omitempty"`
	Value string  `json:"value"`
}

func Object(id string) Argument {
	return Argument{Kind: ArgObject, Value: id}
}

func String(s string) Argument {
	return Argument{Kind: ArgPure, Type: "string", Value: s}
}

func U8(v uint8) Argument {
	return Argument{Kind: ArgPure, Type: "u8", Value: strconv.Itoa(int(v))}
}

// Intent is the action part of a transaction with no sender or gas attached.
type Intent struct {
	Target    string     `json:"target"`
	Arguments []Argument `json:"arguments"`

	// SelfFunded intents are never offered to a sponsor.
	SelfFunded bool `json:"-"`
}

// Package returns the address portion of the target, "0xabc" for "0xabc::m::f".
func (i Intent) Package() string {
	pkg, _, _ := strings.Cut(i.Target, "::")
	return pkg
}

// Function returns the trailing function name of the target.
func (i Intent) Function() string {
	if idx := strings.LastIndex(i.Target, "::"); idx >= 0 {
		return i.Target[idx+2:]
	}
	return i.Target
}

// ObjectIDs lists every object referenced by the intent's arguments.
func (i Intent) ObjectIDs() []string {
	var ids []string
	for _, arg := range i.Arguments {
		if arg.Kind == ArgObject {
			ids = append(ids, arg.Value)
		}
	}
	return ids
}

// KindBytes encodes the intent without gas or sender. This is what the client
// hands to the sponsor.
func (i Intent) KindBytes() ([]byte, error) {
	if i.Target == "" {
		return nil, errors.New("intent has no target")
	}
	b, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent: %w", err)
	}
	return b, nil
}

// DecodeKind parses bytes produced by KindBytes.
func DecodeKind(b []byte) (Intent, error) {
	var i Intent
	if err := json.Unmarshal(b, &i); err != nil {
		return Intent{}, fmt.Errorf("failed to decode intent: %w", err)
	}
	if i.Target == "" {
		return Intent{}, errors.New("intent has no target")
	}
	return i, nil
}

// GasData names who pays for execution and with which coins.
type GasData struct {
	Owner   string             `json:"owner"`
	Payment []ledger.ObjectRef `json:"payment"`
	Budget  uint64             `json:"budget"`
	Price   uint64             `json:"price"`
}

// Data is a complete transaction ready to be signed.
type Data struct {
	Kind   Intent  `json:"kind"`
	Sender string  `json:"sender"`
	Gas    GasData `json:"gas"`
	// Expiration is a unix millisecond deadline after which the ledger refuses
	// the transaction. Zero means none.
	Expiration int64 `json:"expiration,omitempty"`
}

// Sponsored reports whether somebody other than the sender pays gas.
func (d Data) Sponsored() bool {
	return !SameAddress(d.Gas.Owner, d.Sender)
}

// Encode produces the finalized bytes that signatures cover.
func Encode(d Data) ([]byte, error) {
	if d.Sender == "" {
		return nil, errors.New("transaction has no sender")
	}
	if d.Gas.Owner == "" {
		return nil, errors.New("transaction has no gas owner")
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return b, nil
}

// Decode parses finalized transaction bytes.
func Decode(b []byte) (Data, error) {
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return Data{}, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return d, nil
}
