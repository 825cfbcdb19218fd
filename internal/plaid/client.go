// Package plaid is a small JSON client for the subset of the Plaid API used
// to link institutions and pull accounts and transactions.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"finlink/internal/logger"
)

// Client is the provider surface the services depend on.
type Client interface {
	CreateLinkToken(ctx context.Context, req LinkTokenRequest) (*LinkToken, error)
	CreateSandboxPublicToken(ctx context.Context, institutionID string, products []string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*TokenExchange, error)
	GetItem(ctx context.Context, accessToken string) (*Item, error)
	GetInstitution(ctx context.Context, institutionID string, countryCodes []string) (*Institution, error)
	GetAccounts(ctx context.Context, accessToken string) ([]Account, error)
	SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*TransactionsSyncPage, error)
	RemoveItem(ctx context.Context, accessToken string) error
}

var envURLs = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

// BaseURL returns the API host for a Plaid environment name.
func BaseURL(env string) (string, error) {
	u, ok := envURLs[env]
	if !ok {
		return "", fmt.Errorf("unknown plaid environment %q", env)
	}
	return u, nil
}

// HTTPClient calls the Plaid REST API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for baseURL. When httpClient is nil a client
// with the given timeout is used.
func NewHTTPClient(baseURL, clientID, secret string, timeout time.Duration, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		clientID:   clientID,
		secret:     secret,
	}
}

// CreateLinkToken calls /link/token/create.
func (c *HTTPClient) CreateLinkToken(ctx context.Context, req LinkTokenRequest) (*LinkToken, error) {
	var resp LinkToken
	if err := c.post(ctx, "/link/token/create", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateSandboxPublicToken calls /sandbox/public_token/create.
func (c *HTTPClient) CreateSandboxPublicToken(ctx context.Context, institutionID string, products []string) (string, error) {
	body := map[string]any{
		"institution_id":   institutionID,
		"initial_products": products,
	}
	var resp struct {
		PublicToken string `json:"public_token"`
	}
	if err := c.post(ctx, "/sandbox/public_token/create", body, &resp); err != nil {
		return "", err
	}
	return resp.PublicToken, nil
}

// ExchangePublicToken calls /item/public_token/exchange.
func (c *HTTPClient) ExchangePublicToken(ctx context.Context, publicToken string) (*TokenExchange, error) {
	var resp TokenExchange
	if err := c.post(ctx, "/item/public_token/exchange", map[string]string{"public_token": publicToken}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetItem calls /item/get.
func (c *HTTPClient) GetItem(ctx context.Context, accessToken string) (*Item, error) {
	var resp struct {
		Item Item `json:"item"`
	}
	if err := c.post(ctx, "/item/get", map[string]string{"access_token": accessToken}, &resp); err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

// GetInstitution calls /institutions/get_by_id.
func (c *HTTPClient) GetInstitution(ctx context.Context, institutionID string, countryCodes []string) (*Institution, error) {
	body := map[string]any{
		"institution_id": institutionID,
		"country_codes":  countryCodes,
	}
	var resp struct {
		Institution Institution `json:"institution"`
	}
	if err := c.post(ctx, "/institutions/get_by_id", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Institution, nil
}

// GetAccounts calls /accounts/get.
func (c *HTTPClient) GetAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var resp struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.post(ctx, "/accounts/get", map[string]string{"access_token": accessToken}, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// SyncTransactions calls /transactions/sync for one page. An empty cursor
// requests the item's full history.
func (c *HTTPClient) SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*TransactionsSyncPage, error) {
	body := map[string]any{
		"access_token": accessToken,
		"count":        count,
	}
	if cursor != "" {
		body["cursor"] = cursor
	}
	var resp TransactionsSyncPage
	if err := c.post(ctx, "/transactions/sync", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveItem calls /item/remove, invalidating the access token.
func (c *HTTPClient) RemoveItem(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/item/remove", map[string]string{"access_token": accessToken}, nil)
}

// post sends a JSON request and decodes the response into out. Non-200
// responses are decoded into *Error.
func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PLAID-CLIENT-ID", c.clientID)
	req.Header.Set("PLAID-SECRET", c.secret)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	logger.Named("plaid").Debugw("provider call",
		"path", path,
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		pe := &Error{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, pe); err != nil || pe.ErrorCode == "" {
			pe.ErrorType = "API_ERROR"
			pe.ErrorCode = "UNEXPECTED_STATUS"
			pe.ErrorMessage = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return pe
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
