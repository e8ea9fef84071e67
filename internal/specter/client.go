// Package specter talks to the BotOfTheSpecter HTTP API: forwarding
// canonical OBS events and validating access tokens.
package specter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/config"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/event"
)

const (
	defaultTimeout = 10 * time.Second
	forwardPath    = "/SEND_OBS_EVENT"
	checkKeyPath   = "/checkkey"
	validKeyStatus = "Valid API Key"
	maxBodyInError = 512
)

// ErrInvalidKey is returned by CheckKey when the API rejects the token.
var ErrInvalidKey = errors.New("specter: invalid api key")

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithEventName overrides the event name sent with every forward.
func WithEventName(name string) Option {
	return func(c *Client) { c.eventName = name }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client is a BotOfTheSpecter API client.
type Client struct {
	baseURL    string
	eventName  string
	httpClient *http.Client
}

// New creates a client for the API at baseURL (e.g. "https://api.botofthespecter.com").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		eventName:  config.DefaultEventName,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status is the result kind of a single forward.
type Status int

const (
	Sent Status = iota
	Failed
)

func (s Status) String() string {
	if s == Sent {
		return "sent"
	}
	return "failed"
}

// Outcome reports what happened to one forwarded event. Reason is empty
// when Status is Sent.
type Outcome struct {
	Status Status
	Reason string
}

func failed(format string, args ...any) Outcome {
	return Outcome{Status: Failed, Reason: fmt.Sprintf(format, args...)}
}

// Forward sends ev to the collection endpoint as a single best-effort POST.
// It never retries and never returns an error: every failure is reported in
// the Outcome.
//
// Wire shape: POST {base}/SEND_OBS_EVENT?api_key=<token> with a form body
// carrying event=<event name> and data=<compact canonical JSON>.
func (c *Client) Forward(ctx context.Context, ev event.Canonical, accessToken string) Outcome {
	payload, err := ev.Encode()
	if err != nil {
		return failed("encode %s: %v", ev.Name, err)
	}

	form := url.Values{}
	form.Set("event", c.eventName)
	form.Set("data", string(payload))

	endpoint := c.baseURL + forwardPath + "?" + url.Values{"api_key": {accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return failed("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failed("post %s: %v", forwardPath, redact(err, accessToken))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyInError))
		return failed("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return Outcome{Status: Sent}
}

type checkKeyResponse struct {
	Status string `json:"status"`
}

// CheckKey asks the API whether accessToken is valid. It returns
// ErrInvalidKey when the API answers but rejects the token, and a transport
// or decoding error when no verdict could be obtained.
func (c *Client) CheckKey(ctx context.Context, accessToken string) error {
	endpoint := c.baseURL + checkKeyPath + "?" + url.Values{"api_key": {accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("specter: checkkey: %w", redact(err, accessToken))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w (HTTP %d)", ErrInvalidKey, resp.StatusCode)
	}

	var out checkKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("specter: checkkey: decode: %w", err)
	}
	if out.Status != validKeyStatus {
		return fmt.Errorf("%w: %s", ErrInvalidKey, out.Status)
	}
	return nil
}

// redact strips the access token from transport errors, which embed the
// request URL.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, token, "REDACTED"))
}
