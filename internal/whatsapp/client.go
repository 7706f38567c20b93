package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxTextLen is the WhatsApp per-message body limit. Longer texts are
// truncated with a visible ellipsis before sending.
const MaxTextLen = 4096

// ErrAuth signals an invalid or expired access token. Sends failing with it
// are never retried.
var ErrAuth = errors.New("whatsapp: invalid access token")

// Client sends messages via the WhatsApp Cloud API.
type Client struct {
	Token         string
	PhoneNumberID string
	BaseURL       string
	HTTPClient    *http.Client
	Retries       int
	Log           *zap.Logger
}

// NewClient creates a Cloud API client.
func NewClient(token, phoneNumberID, baseURL string, retries int, log *zap.Logger) *Client {
	if retries < 1 {
		retries = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		Token:         token,
		PhoneNumberID: phoneNumberID,
		BaseURL:       baseURL,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		Retries:       retries,
		Log:           log,
	}
}

// SendText sends a text message to the given phone number. Delivery is safe
// to retry, so transient failures are retried with linear backoff.
// Authentication failures abort immediately.
func (c *Client) SendText(ctx context.Context, to, text string) (*SendMessageResponse, error) {
	if len(text) > MaxTextLen {
		cut := MaxTextLen - 6
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}

	req := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             TextContent{Body: text},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)

	var lastErr error
	for attempt := 0; attempt < c.Retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(2*attempt) * time.Second
			c.Log.Info("retrying send", zap.String("to", to), zap.Duration("wait", wait))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := c.post(ctx, url, body)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrAuth) {
			return nil, err
		}
		lastErr = err
		c.Log.Warn("send attempt failed",
			zap.String("to", to),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, fmt.Errorf("send after %d attempts: %w", c.Retries, lastErr)
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*SendMessageResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.Log.Error("whatsapp token rejected", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrAuth)
	default:
		return nil, fmt.Errorf("whatsapp API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result SendMessageResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &result, nil
}

// DownloadMedia fetches a media attachment in two steps: resolve the media ID
// to a download URL, then fetch the binary.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	meta, err := c.getJSON(ctx, fmt.Sprintf("%s/%s", c.BaseURL, mediaID))
	if err != nil {
		return nil, fmt.Errorf("resolve media %s: %w", mediaID, err)
	}

	var media MediaResponse
	if err := json.Unmarshal(meta, &media); err != nil {
		return nil, fmt.Errorf("unmarshal media metadata: %w", err)
	}
	if media.URL == "" {
		return nil, fmt.Errorf("media %s has no download URL", mediaID)
	}

	data, err := c.getJSON(ctx, media.URL)
	if err != nil {
		return nil, fmt.Errorf("download media %s: %w", mediaID, err)
	}

	c.Log.Debug("media downloaded", zap.String("media_id", mediaID), zap.Int("bytes", len(data)))
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// MarkRead marks a message as read. Failures are non-fatal for message
// handling, so the caller typically only logs the error.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	req := MarkReadRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mark read: status %d", resp.StatusCode)
	}
	return nil
}
