// Package crm talks to an Odoo-compatible backend over JSON-RPC. It covers
// the three concerns the assistant needs: helpdesk/sales tickets, contact
// lookup, and the spreadsheet-backed user directory.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned by every operation when the CRM credentials
// are absent. Callers treat it as "feature off", not a failure.
var ErrNotConfigured = errors.New("crm: not configured")

// Client is a JSON-RPC client for the CRM backend.
type Client struct {
	URL        string
	Database   string
	Username   string
	APIKey     string
	HTTPClient *http.Client
	Log        *zap.Logger

	mu  sync.Mutex
	uid int
}

func NewClient(url, database, username, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		URL:        strings.TrimRight(url, "/"),
		Database:   database,
		Username:   username,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Log:        log,
	}
}

// Configured reports whether the client has enough credentials to operate.
func (c *Client) Configured() bool {
	return c.URL != "" && c.Database != "" && c.Username != "" && c.APIKey != ""
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int       `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call performs one JSON-RPC round trip and decodes result into out.
func (c *Client) call(ctx context.Context, service, method string, args []any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      1,
	})
	if err != nil {
		return fmt.Errorf("encoding rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/jsonrpc", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s.%s: %w", service, method, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s.%s returned status %d", service, method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("decoding rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		c.Log.Warn("crm rpc error",
			zap.String("service", service),
			zap.String("method", method),
			zap.String("message", rpcResp.Error.Message))
		return fmt.Errorf("%s.%s: %s", service, method, rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decoding %s.%s result: %w", service, method, err)
		}
	}
	return nil
}

// authenticate resolves and caches the backend user id.
func (c *Client) authenticate(ctx context.Context) (int, error) {
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	if uid != 0 {
		return uid, nil
	}

	var result int
	err := c.call(ctx, "common", "authenticate",
		[]any{c.Database, c.Username, c.APIKey, map[string]any{}}, &result)
	if err != nil {
		return 0, err
	}
	if result == 0 {
		return 0, fmt.Errorf("crm: authentication rejected for %s", c.Username)
	}

	c.mu.Lock()
	c.uid = result
	c.mu.Unlock()
	return result, nil
}

// executeKw invokes model.method on the backend.
func (c *Client) executeKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	uid, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return c.call(ctx, "object", "execute_kw",
		[]any{c.Database, uid, c.APIKey, model, method, args, kwargs}, out)
}
