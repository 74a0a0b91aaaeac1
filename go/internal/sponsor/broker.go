// Package sponsor implements both ends of gas sponsorship: the Broker the game
// client uses to ask for a grant, and the Server that issues grants.
package sponsor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/majorityrules/go/internal/tx"
)

// ErrUnavailable is wrapped by every broker failure. Callers treat it as a
// signal to pay gas themselves, not as a hard error.
var ErrUnavailable = errors.New("sponsorship unavailable")

// Grant is a sponsor's signed commitment to pay for one finalized transaction.
// TxBytes are authoritative: the user signs exactly these bytes.
type Grant struct {
	SponsorAddress string
	TxBytes        []byte
	Signature      string
	Data           tx.Data
}

type BrokerConfig struct {
	URL     string
	Timeout time.Duration
	// MaxBudget is the largest gas budget the client accepts from a sponsor.
	MaxBudget uint64
}

type Broker struct {
	url       string
	client    *http.Client
	maxBudget uint64
	clock     clockwork.Clock
}

func NewBroker(cfg BrokerConfig, clock clockwork.Clock) *Broker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broker{
		url:       cfg.URL,
		client:    &http.Client{Timeout: timeout},
		maxBudget: cfg.MaxBudget,
		clock:     clock,
	}
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// RequestSponsorship sends the intent kind to the sponsor and validates what
// comes back. Any failure, including a grant that does not match the request,
// is reported as ErrUnavailable.
func (b *Broker) RequestSponsorship(ctx context.Context, in tx.Intent, sender string) (*Grant, error) {
	if in.SelfFunded {
		return nil, unavailable("intent %s is self-funded", in.Function())
	}
	kind, err := in.KindBytes()
	if err != nil {
		return nil, unavailable("%v", err)
	}

	body, err := json.Marshal(SponsorRequest{
		IntentKindBytes: base64.StdEncoding.EncodeToString(kind),
		SenderAddress:   sender,
	})
	if err != nil {
		return nil, unavailable("encode request: %v", err)
	}

	var resp SponsorResponse
	if err := b.do(ctx, http.MethodPost, body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, unavailable("sponsor refused: %s", resp.Error)
	}

	grant, err := b.validate(kind, sender, resp)
	if err != nil {
		return nil, unavailable("%v", err)
	}
	return grant, nil
}

func (b *Broker) validate(kind []byte, sender string, resp SponsorResponse) (*Grant, error) {
	if resp.FinalizedBytes == "" || resp.SponsorSignature == "" || resp.SponsorAddress == "" {
		return nil, errors.New("incomplete grant")
	}
	txBytes, err := base64.StdEncoding.DecodeString(resp.FinalizedBytes)
	if err != nil {
		return nil, fmt.Errorf("decode finalized bytes: %w", err)
	}
	data, err := tx.Decode(txBytes)
	if err != nil {
		return nil, err
	}

	granted, err := data.Kind.KindBytes()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(granted, kind) {
		return nil, errors.New("grant covers a different intent")
	}
	if !tx.SameAddress(data.Sender, sender) {
		return nil, fmt.Errorf("grant sender %s does not match %s", data.Sender, sender)
	}
	if !tx.SameAddress(data.Gas.Owner, resp.SponsorAddress) {
		return nil, fmt.Errorf("gas owner %s is not the sponsor", data.Gas.Owner)
	}
	if len(data.Gas.Payment) == 0 {
		return nil, errors.New("grant has no gas payment")
	}
	if data.Gas.Budget == 0 || (b.maxBudget > 0 && data.Gas.Budget > b.maxBudget) {
		return nil, fmt.Errorf("gas budget %d outside ceiling %d", data.Gas.Budget, b.maxBudget)
	}
	if data.Expiration != 0 && !b.clock.Now().Before(time.UnixMilli(data.Expiration)) {
		return nil, errors.New("grant already expired")
	}

	signer, err := tx.RecoverSigner(txBytes, resp.SponsorSignature)
	if err != nil {
		return nil, err
	}
	if !tx.SameAddress(signer, resp.SponsorAddress) {
		return nil, fmt.Errorf("sponsor signature recovers to %s", signer)
	}

	return &Grant{
		SponsorAddress: tx.NormalizeAddress(resp.SponsorAddress),
		TxBytes:        txBytes,
		Signature:      resp.SponsorSignature,
		Data:           data,
	}, nil
}

// Health probes the sponsor's status endpoint.
func (b *Broker) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := b.do(ctx, http.MethodGet, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *Broker) do(ctx context.Context, method string, body []byte, out any) error {
	if b.url == "" {
		return unavailable("no sponsor configured")
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.url, reader)
	if err != nil {
		return unavailable("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := b.client.Do(req)
	if err != nil {
		return unavailable("request failed: %v", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return unavailable("read response: %v", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return unavailable("status %d, malformed response: %v", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if sr, ok := out.(*SponsorResponse); ok && sr.Error != "" {
			return unavailable("status %d: %s", resp.StatusCode, sr.Error)
		}
		return unavailable("status %d", resp.StatusCode)
	}
	return nil
}
