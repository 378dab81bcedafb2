// Package identity talks to the identity provider's REST API.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dtroode/taq-server/internal/model"
)

var _ model.IdentityProvider = (*Client)(nil)

// Config holds provider credentials and endpoints.
type Config struct {
	BaseURL       string
	WalletBaseURL string
	AppID         string
	AppSecret     string
	// ChainID is the CAIP-2 chain the demo payment is sent on.
	ChainID string
}

// Client is an IdentityProvider backed by the provider's REST API.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config, client *http.Client) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("provider app id and secret are required")
	}
	if cfg.WalletBaseURL == "" {
		cfg.WalletBaseURL = cfg.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.WalletBaseURL = strings.TrimRight(cfg.WalletBaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, client: client}, nil
}

type linkedAccount struct {
	Type             string `json:"type"`
	Address          string `json:"address"`
	ChainType        string `json:"chain_type"`
	WalletClientType string `json:"wallet_client_type"`
	ID               string `json:"id"`
}

type userResponse struct {
	ID             string          `json:"id"`
	LinkedAccounts []linkedAccount `json:"linked_accounts"`
}

// Identity fetches the identity's linked email and embedded wallet.
// A provider that does not know the identity yet yields ErrIdentityPending.
func (c *Client) Identity(ctx context.Context, identityID string) (model.Identity, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v1/users/"+url.PathEscape(identityID), nil)
	if err != nil {
		return model.Identity{}, err
	}

	var user userResponse
	if err := c.do(req, &user); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return model.Identity{}, model.ErrIdentityPending
		}
		return model.Identity{}, fmt.Errorf("failed to get identity: %w", err)
	}

	id := model.Identity{ID: user.ID}
	if id.ID == "" {
		id.ID = identityID
	}
	for _, acc := range user.LinkedAccounts {
		switch acc.Type {
		case "email":
			if id.Email == "" {
				id.Email = acc.Address
			}
		case "wallet":
			// embedded wallet wins over externally connected ones
			if id.WalletAddress == "" || acc.WalletClientType == "privy" {
				id.WalletAddress = acc.Address
				id.WalletID = acc.ID
			}
		}
	}
	return id, nil
}

// Logout revokes the identity's provider sessions.
func (c *Client) Logout(ctx context.Context, identityID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/users/"+url.PathEscape(identityID)+"/logout", nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to logout identity: %w", err)
	}
	return nil
}

type rpcTransaction struct {
	To    string `json:"to"`
	Value string `json:"value"`
}

type rpcRequest struct {
	Method string `json:"method"`
	CAIP2  string `json:"caip2,omitempty"`
	Params struct {
		Transaction rpcTransaction `json:"transaction"`
	} `json:"params"`
}

type rpcResponse struct {
	Data struct {
		Hash string `json:"hash"`
	} `json:"data"`
}

// SendPayment sends amountWei from the identity's embedded wallet to the given address.
func (c *Client) SendPayment(ctx context.Context, identity model.Identity, to string, amountWei *big.Int) (string, error) {
	if identity.WalletID == "" {
		return "", model.ErrNoWallet
	}
	if amountWei == nil || amountWei.Sign() < 0 {
		return "", fmt.Errorf("invalid amount")
	}

	body := rpcRequest{Method: "eth_sendTransaction", CAIP2: c.cfg.ChainID}
	body.Params.Transaction = rpcTransaction{
		To:    to,
		Value: "0x" + amountWei.Text(16),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode rpc request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.WalletBaseURL+"/v1/wallets/"+url.PathEscape(identity.WalletID)+"/rpc", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp rpcResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	if resp.Data.Hash == "" {
		return "", fmt.Errorf("failed to send transaction: empty hash")
	}
	return resp.Data.Hash, nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AppID, c.cfg.AppSecret)
	req.Header.Set("privy-app-id", c.cfg.AppID)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider error: status %d: %s", e.Code, e.Body)
}

func isStatus(err error, code int) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code == code
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}
