package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default Twilio client settings.
const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	defaultTwilioTimeout = 15 * time.Second
	defaultMaxRetries    = 2
	defaultBaseBackoff   = 500 * time.Millisecond
)

// TwilioConfig holds SMS provider credentials. All three identity fields
// must be present for the transport to count as configured.
type TwilioConfig struct {
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	FromNumber string `koanf:"from_number"`
	BaseURL    string `koanf:"base_url"`
	Timeout    int    `koanf:"timeout"` // seconds
}

// TwilioTransport sends SMS through Twilio's REST API.
type TwilioTransport struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewTwilioTransport builds the transport. Missing credentials are not an
// error here: the transport reports itself unconfigured and the dispatcher
// skips gracefully.
func NewTwilioTransport(cfg TwilioConfig) *TwilioTransport {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	timeout := defaultTwilioTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &TwilioTransport{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: defaultMaxRetries,
	}
}

// Configured reports whether credentials and a sender number are present.
func (t *TwilioTransport) Configured() bool {
	return t.accountSID != "" && t.authToken != "" && t.from != ""
}

// twilioMessageResponse is the subset of the create-message response we
// care about.
type twilioMessageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// twilioErrorResponse is Twilio's error envelope.
type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Send delivers one SMS, retrying transient provider failures with
// exponential backoff.
func (t *TwilioTransport) Send(ctx context.Context, to, body string) (string, error) {
	if !t.Configured() {
		return "", fmt.Errorf("sms transport not configured")
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		sid, err := t.doSend(ctx, to, body)
		if err == nil {
			return sid, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doSend performs one create-message request.
func (t *TwilioTransport) doSend(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("sms request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("sms provider rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("sms provider error (%d)", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var errResp twilioErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return "", fmt.Errorf("sms provider rejected message (%d): %s", errResp.Code, errResp.Message)
		}
		return "", fmt.Errorf("sms provider rejected message (%d): %s", resp.StatusCode, string(respBody))
	}

	var msg twilioMessageResponse
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if msg.SID == "" {
		return "", fmt.Errorf("sms provider returned no message sid")
	}
	return msg.SID, nil
}

// Ensure TwilioTransport implements Transport.
var _ Transport = (*TwilioTransport)(nil)
