package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// addressSigner is the opaque signer handed to callers; the gateway holds
// the key material.
type addressSigner struct {
	address string
}

func (s addressSigner) Address() string { return s.address }

// StaticSigner wraps a bare address as a Signer, for the operator account
// and for tests.
func StaticSigner(address string) Signer {
	return addressSigner{address: address}
}

// GatewayKeyring implements Keyring against the gateway's custodial wallet
// API. Wallets are created once per user on first request; the gateway
// returns the existing address on every later call.
type GatewayKeyring struct {
	baseURL  string
	operator Signer
	client   *http.Client
}

// NewGatewayKeyring creates a keyring backed by the gateway at baseURL.
// operatorAddress is the pre-funded service account used for finalize and
// attendance transactions.
func NewGatewayKeyring(baseURL, operatorAddress string, opts ...GatewayOption) *GatewayKeyring {
	// Reuse the gateway client options for HTTP configuration.
	g := &GatewayClient{client: &http.Client{Timeout: defaultHTTPTimeout}}
	for _, opt := range opts {
		opt(g)
	}

	return &GatewayKeyring{
		baseURL:  baseURL,
		operator: StaticSigner(operatorAddress),
		client:   g.client,
	}
}

type walletRequest struct {
	UserID int64 `json:"user_id"`
}

type walletResponse struct {
	Address string `json:"address"`
	Created bool   `json:"created"`
}

// SignerFor returns the signer for a user, creating a wallet on first request.
func (k *GatewayKeyring) SignerFor(ctx context.Context, userID int64) (Signer, bool, error) {
	payload, err := json.Marshal(walletRequest{UserID: userID})
	if err != nil {
		return nil, false, fmt.Errorf("marshal wallet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/v1/wallets", bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("wallet request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= statusClientErrCode {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, false, fmt.Errorf("wallet request: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var w walletResponse
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, false, fmt.Errorf("decode wallet response: %w", err)
	}
	return StaticSigner(w.Address), w.Created, nil
}

// Operator returns the service operator's signer.
func (k *GatewayKeyring) Operator(_ context.Context) (Signer, error) {
	return k.operator, nil
}
