package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway client defaults.
const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultReceiptPoll  = 2 * time.Second
	maxErrorBodyBytes   = 4096
	statusClientErrCode = 400
)

// GatewayOption applies a configuration option to the GatewayClient.
type GatewayOption func(*GatewayClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *GatewayClient) {
		if c != nil {
			g.client = c
		}
	}
}

// WithReceiptPollInterval sets how often Confirm polls for a receipt.
func WithReceiptPollInterval(d time.Duration) GatewayOption {
	return func(g *GatewayClient) {
		if d > 0 {
			g.receiptPoll = d
		}
	}
}

// GatewayClient implements Ledger against a contract gateway that holds
// the RPC connection and performs signing server-side. The gateway is the
// trust boundary for key custody; this client only ships call payloads and
// signer references.
type GatewayClient struct {
	baseURL     string
	contract    string
	client      *http.Client
	receiptPoll time.Duration
}

// NewGatewayClient creates a client for the gateway at baseURL, targeting
// the given contract address.
func NewGatewayClient(baseURL, contract string, opts ...GatewayOption) *GatewayClient {
	g := &GatewayClient{
		baseURL:     baseURL,
		contract:    contract,
		client:      &http.Client{Timeout: defaultHTTPTimeout},
		receiptPoll: defaultReceiptPoll,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

type txRequest struct {
	Contract string `json:"contract"`
	Method   string `json:"method"`
	Signer   string `json:"signer"`
	Params   []any  `json:"params"`
}

type txResponse struct {
	TxHash  string `json:"tx_hash"`
	EventID int64  `json:"event_id,omitempty"`
}

type receiptResponse struct {
	TxHash      string    `json:"tx_hash"`
	Status      string    `json:"status"` // pending, confirmed, reverted
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type eventStateResponse struct {
	ID        int64    `json:"id"`
	Finalized bool     `json:"finalized"`
	Attendees []string `json:"attendees"`
	Stakers   []string `json:"stakers"`
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// CreateEvent submits an event-creation transaction.
func (g *GatewayClient) CreateEvent(ctx context.Context, signer Signer, name string, when time.Time, stake decimal.Decimal) (int64, TxHandle, error) {
	var resp txResponse
	err := g.submit(ctx, txRequest{
		Contract: g.contract,
		Method:   "createEvent",
		Signer:   signer.Address(),
		Params:   []any{name, when.Unix(), stake.String()},
	}, &resp)
	if err != nil {
		return 0, "", err
	}
	return resp.EventID, TxHandle(resp.TxHash), nil
}

// JoinEvent transfers the stake from the signer's address into the pool.
func (g *GatewayClient) JoinEvent(ctx context.Context, signer Signer, eventID int64, stake decimal.Decimal) (TxHandle, error) {
	var resp txResponse
	err := g.submit(ctx, txRequest{
		Contract: g.contract,
		Method:   "joinEvent",
		Signer:   signer.Address(),
		Params:   []any{eventID, stake.String()},
	}, &resp)
	if err != nil {
		return "", err
	}
	return TxHandle(resp.TxHash), nil
}

// FinalizeEvent closes the event.
func (g *GatewayClient) FinalizeEvent(ctx context.Context, signer Signer, eventID int64) (TxHandle, error) {
	var resp txResponse
	err := g.submit(ctx, txRequest{
		Contract: g.contract,
		Method:   "finalizeEvent",
		Signer:   signer.Address(),
		Params:   []any{eventID},
	}, &resp)
	if err != nil {
		return "", err
	}
	return TxHandle(resp.TxHash), nil
}

// MarkAttendance records on-ledger attendance for an address.
func (g *GatewayClient) MarkAttendance(ctx context.Context, signer Signer, eventID int64, attendee string) (TxHandle, error) {
	var resp txResponse
	err := g.submit(ctx, txRequest{
		Contract: g.contract,
		Method:   "markAttendance",
		Signer:   signer.Address(),
		Params:   []any{eventID, attendee},
	}, &resp)
	if err != nil {
		return "", err
	}
	return TxHandle(resp.TxHash), nil
}

// Confirm polls the gateway for the transaction receipt until it is
// confirmed, reverted, or ctx is done.
func (g *GatewayClient) Confirm(ctx context.Context, tx TxHandle) (Receipt, error) {
	ticker := time.NewTicker(g.receiptPoll)
	defer ticker.Stop()

	for {
		var resp receiptResponse
		err := g.get(ctx, "/v1/receipts/"+string(tx), &resp)
		if err != nil {
			return Receipt{}, err
		}

		switch resp.Status {
		case "confirmed":
			return Receipt{Hash: tx, Succeeded: true, ConfirmedAt: resp.ConfirmedAt}, nil
		case "reverted":
			return Receipt{Hash: tx, Succeeded: false, ConfirmedAt: resp.ConfirmedAt}, ErrConfirmFailed
		}

		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// EventState reads back authoritative event state.
func (g *GatewayClient) EventState(ctx context.Context, eventID int64) (EventState, error) {
	var resp eventStateResponse
	if err := g.get(ctx, fmt.Sprintf("/v1/contracts/%s/events/%d", g.contract, eventID), &resp); err != nil {
		if errors.Is(err, ErrUnknownTx) {
			return EventState{}, ErrUnknownEvent
		}
		return EventState{}, err
	}
	return EventState{
		ID:        resp.ID,
		Finalized: resp.Finalized,
		Attendees: resp.Attendees,
		Stakers:   resp.Stakers,
	}, nil
}

// Balance returns the spendable balance of an address.
func (g *GatewayClient) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := g.get(ctx, "/v1/balances/"+address, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

func (g *GatewayClient) submit(ctx context.Context, req txRequest, out *txResponse) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal tx request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/transactions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= statusClientErrCode {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%w: %s: %s", ErrSubmitFailed, resp.Status, bytes.TrimSpace(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tx response: %w", err)
	}
	return nil
}

func (g *GatewayClient) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUnknownTx
	}
	if resp.StatusCode >= statusClientErrCode {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("gateway get %s: %s: %s", path, resp.Status, bytes.TrimSpace(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
