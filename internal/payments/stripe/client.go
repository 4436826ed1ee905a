// Package stripe provides a narrow client for the Stripe Checkout REST API.
// Only the two calls the fulfillment protocol needs are implemented.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storyforge/internal/infra"
)

const defaultBaseURL = "https://api.stripe.com"

// PaymentStatusPaid is the only session status that permits fulfillment.
const PaymentStatusPaid = "paid"

// Options controls how the checkout client is configured.
type Options struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the Stripe Checkout Sessions API.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Session is the subset of a checkout session the fulfillment protocol
// depends on.
type Session struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// CreateSessionParams describes a new checkout session. Metadata rides on
// the session and comes back verbatim on retrieval.
type CreateSessionParams struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// NewClient builds a checkout client. A client without a secret key is
// valid but reports itself as unconfigured.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		secretKey:  strings.TrimSpace(opts.SecretKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// Configured reports whether the payment processor credentials are present.
func (c *Client) Configured() bool {
	return c != nil && c.secretKey != ""
}

// CreateSession creates a payment-mode checkout session for one line item.
func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("stripe: client not configured")
	}
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	for key, value := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	if c.logger != nil {
		c.logger.Info().Str("session_id", session.ID).Msg("stripe: checkout session created")
	}
	return &session, nil
}

// RetrieveSession fetches a checkout session by id.
func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("stripe: client not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("stripe: session id is required")
	}
	var session Session
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("stripe: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("stripe: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe: %s %s: status %d: %s", method, path, resp.StatusCode, apiErrorMessage(payload))
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("stripe: decode response: %w", err)
		}
	}
	return nil
}

func apiErrorMessage(payload []byte) string {
	var wrapper struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	return strings.TrimSpace(string(payload))
}
