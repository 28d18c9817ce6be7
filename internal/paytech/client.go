package paytech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/msall/kaalis/internal/metrics"
	"github.com/msall/kaalis/internal/retry"
)

const (
	requestPaymentPath = "/api/payment/request-payment"

	// Transient failures (network errors, 5xx) are retried with backoff.
	// Anything the provider actively rejected is not.
	requestAttempts   = 3
	requestRetryDelay = 500 * time.Millisecond
)

// PaymentRequest is an outbound request for a hosted payment page.
type PaymentRequest struct {
	RefCommand  string
	ItemName    string
	ItemPrice   int64
	Currency    string
	CommandName string
	Env         string // "test" or "prod"
	SuccessURL  string
	CancelURL   string
	IPNURL      string
	CustomField string // round-tripped on the notification
}

// PaymentRedirect is the provider's answer to a payment request.
type PaymentRedirect struct {
	Token       string
	RedirectURL string
}

// Client talks to the provider's payment API.
type Client struct {
	baseURL    string
	creds      Credentials
	http       *http.Client
	attempts   int
	retryDelay time.Duration
}

func NewClient(baseURL string, creds Credentials) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		http:       &http.Client{Timeout: 15 * time.Second},
		attempts:   requestAttempts,
		retryDelay: requestRetryDelay,
	}
}

type requestPaymentResponse struct {
	Success     json.Number `json:"success"`
	Token       string      `json:"token"`
	RedirectURL string      `json:"redirect_url"`
	// Some provider deployments use the camelCase variant.
	RedirectURLAlt string `json:"redirectUrl"`
	Message        string `json:"message"`
}

// RequestPayment registers a payment with the provider and returns the
// hosted page the buyer must be redirected to. Network failures and 5xx
// answers are retried; provider rejections are returned as-is.
func (c *Client) RequestPayment(ctx context.Context, req *PaymentRequest) (*PaymentRedirect, error) {
	form := url.Values{}
	form.Set("ref_command", req.RefCommand)
	form.Set("item_name", req.ItemName)
	form.Set("item_price", strconv.FormatInt(req.ItemPrice, 10))
	form.Set("currency", req.Currency)
	form.Set("command_name", req.CommandName)
	form.Set("env", req.Env)
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("ipn_url", req.IPNURL)
	form.Set("custom_field", req.CustomField)

	encoded := form.Encode()

	var redirect *PaymentRedirect
	err := retry.Do(ctx, c.attempts, c.retryDelay, func() error {
		var attemptErr error
		redirect, attemptErr = c.requestOnce(ctx, encoded)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return redirect, nil
}

func (c *Client) requestOnce(ctx context.Context, encodedForm string) (*PaymentRedirect, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+requestPaymentPath, strings.NewReader(encodedForm))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build payment request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("API_KEY", c.creds.APIKey)
	httpReq.Header.Set("API_SECRET", c.creds.APISecret)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.ProviderRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxNotificationBytes))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, retry.Permanent(fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	var decoded requestPaymentResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode provider response: %w", err))
	}
	if success, _ := decoded.Success.Int64(); success != 1 {
		return nil, retry.Permanent(fmt.Errorf("provider rejected payment request: %s", decoded.Message))
	}

	redirect := decoded.RedirectURL
	if redirect == "" {
		redirect = decoded.RedirectURLAlt
	}
	if redirect == "" {
		return nil, retry.Permanent(ErrNoRedirect)
	}
	return &PaymentRedirect{Token: decoded.Token, RedirectURL: redirect}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
