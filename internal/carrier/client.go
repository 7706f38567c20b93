// Package carrier is a thin HTTP client for the carrier's rating and
// tracking APIs. Rating and tracking may run under separate API credentials,
// so callers hold one Client per credential pair.
package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAuth is returned when the API rejects our bearer token even after a
// refresh. The caller decides whether to retry the whole operation.
var ErrAuth = errors.New("carrier: authentication rejected")

// Client talks to the carrier REST APIs using OAuth2 client credentials.
type Client struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Log        *zap.Logger

	mu    sync.Mutex
	token string
}

// NewClient builds a Client with a 30s request timeout.
func NewClient(apiKey, secretKey, baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		APIKey:     apiKey,
		SecretKey:  secretKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Log:        log,
	}
}

// authenticate fetches a fresh bearer token and stores it on the client.
func (c *Client) authenticate(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.APIKey},
		"client_secret": {c.SecretKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.Log.Warn("carrier token request failed",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncateBody(body)))
		return fmt.Errorf("token request failed with status %d: %w", resp.StatusCode, ErrAuth)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("token response missing access_token: %w", ErrAuth)
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()
	c.Log.Debug("carrier token refreshed", zap.Int("expires_in", tok.ExpiresIn))
	return nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	tok = c.token
	c.mu.Unlock()
	return tok, nil
}

// post sends an authenticated JSON POST and decodes the response into out.
// On a 401 it refreshes the token once; if retry is true the request is
// reissued with the new token, otherwise ErrAuth is returned so the next
// invocation starts clean.
func (c *Client) post(ctx context.Context, path string, payload, out any, retry bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	attempt := func(token string) (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return 0, nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, respBody, nil
	}

	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	status, respBody, err := attempt(token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.Log.Info("carrier token expired, refreshing", zap.String("path", path))
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		if err := c.authenticate(ctx); err != nil {
			return err
		}
		if !retry {
			return fmt.Errorf("%s: %w", path, ErrAuth)
		}
		c.mu.Lock()
		token = c.token
		c.mu.Unlock()
		status, respBody, err = attempt(token)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		c.Log.Warn("carrier request failed",
			zap.String("path", path),
			zap.Int("status", status),
			zap.ByteString("body", truncateBody(respBody)))
		return fmt.Errorf("%s returned status %d", path, status)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// RateQuote requests rate options for a shipment. On auth failure the token
// is refreshed but the quote is not retried inside this call.
func (c *Client) RateQuote(ctx context.Context, req RateRequest) (*RateReply, error) {
	var reply RateReply
	if err := c.post(ctx, "/rate/v1/rates/quotes", req, &reply, false); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Track looks up the latest status and scan history for a tracking number.
func (c *Client) Track(ctx context.Context, trackingNumber string) (*TrackReply, error) {
	req := TrackRequest{
		IncludeDetailedScans: true,
		TrackingInfo: []TrackingInfo{
			{TrackingNumberInfo: TrackingNumberInfo{TrackingNumber: trackingNumber}},
		},
	}
	var reply TrackReply
	if err := c.post(ctx, "/track/v1/trackingnumbers", req, &reply, true); err != nil {
		return nil, err
	}
	return &reply, nil
}

func truncateBody(b []byte) []byte {
	if len(b) > 512 {
		return b[:512]
	}
	return b
}
