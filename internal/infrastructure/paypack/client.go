package paypack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/soko-labs/soko-checkout/internal/domain/payment"
)

// Client talks to the Paypack mobile-money API: cash-in initiation and the
// transaction events feed the orchestrator polls. Tokens are cached and
// refreshed ahead of expiry.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	environment  string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// Environment selects the provider side: "development" cash-ins are
	// auto-approved by the sandbox, "production" moves real money.
	Environment string
}

func NewClient(cfg Config) *Client {
	env := cfg.Environment
	if env == "" {
		env = "development"
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		environment:  env,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

type authRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type authResponse struct {
	Access  string `json:"access"`
	Expires int64  `json:"expires"`
}

type cashInRequest struct {
	Number string `json:"number"`
	Amount int64  `json:"amount"`
}

type cashInResponse struct {
	Ref string `json:"ref"`
}

type eventsResponse struct {
	Transactions []struct {
		Data struct {
			Ref    string `json:"ref"`
			Status string `json:"status"`
			Amount int64  `json:"amount"`
			Client string `json:"client"`
		} `json:"data"`
	} `json:"transactions"`
}

func (c *Client) InitiateCashIn(ctx context.Context, phoneNumber string, amount int64) (string, error) {
	var resp cashInResponse
	err := c.do(ctx, http.MethodPost, "/transactions/cashin", cashInRequest{
		Number: phoneNumber,
		Amount: amount,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Ref == "" {
		return "", fmt.Errorf("paypack: cash-in accepted without a reference")
	}
	return resp.Ref, nil
}

// FindByReference reads the shared transaction events feed and returns the
// entry for ref, if any. Repeated calls with no new events return the same
// result; a feed that does not mention ref yet is a plain not-found.
func (c *Client) FindByReference(ctx context.Context, ref string) (*payment.Transaction, error) {
	path := "/events/transactions?" + url.Values{"ref": {ref}}.Encode()
	var resp eventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	for _, ev := range resp.Transactions {
		if ev.Data.Ref != ref {
			continue
		}
		return &payment.Transaction{
			Ref:    ev.Data.Ref,
			Status: ev.Data.Status,
			Amount: ev.Data.Amount,
			Payer:  ev.Data.Client,
		}, nil
	}
	return nil, payment.ErrTransactionNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.authorize(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("paypack: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set("X-Webhook-Mode", c.environment)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypack: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("paypack: %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// authorize returns a cached token, refreshing it when less than a minute
// of validity remains.
func (c *Client) authorize(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(time.Minute).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	raw, err := json.Marshal(authRequest{ClientID: c.clientID, ClientSecret: c.clientSecret})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/agents/authorize", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypack: authorize: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypack: authorize: status %d", resp.StatusCode)
	}
	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("paypack: authorize: decode: %w", err)
	}
	if auth.Access == "" {
		return "", fmt.Errorf("paypack: authorize: empty token")
	}

	c.accessToken = auth.Access
	c.tokenExpiry = time.Unix(auth.Expires, 0)
	if auth.Expires == 0 {
		c.tokenExpiry = time.Now().Add(10 * time.Minute)
	}
	return c.accessToken, nil
}
