package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridz/shipdesk-whatsapp/internal/whatsapp"
)

const samplePayload = `{
	"entry": [{
		"changes": [{
			"field": "messages",
			"value": {
				"contacts": [{"wa_id": "573001234567", "profile": {"name": "Ana"}}],
				"messages": [{
					"id": "wamid.1",
					"from": "573001234567",
					"type": "text",
					"text": {"body": "hola"}
				}]
			}
		}]
	}]
}`

type capture struct {
	mu    sync.Mutex
	msgs  []whatsapp.Message
	names []string
}

func (c *capture) handler(_ context.Context, msg whatsapp.Message, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	c.names = append(c.names, name)
}

func (c *capture) wait(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.msgs)
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("handler not called %d times", n)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyHandshake(t *testing.T) {
	s := NewServer(":0", "verify-me", "", nil, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	buf := make([]byte, 16)
	n, _ := resp.Body.Read(buf)
	assert.Equal(t, "12345", string(buf[:n]))

	resp, err = http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEventDispatchAndDedup(t *testing.T) {
	var c capture
	s := NewServer(":0", "v", "", c.handler, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/webhook", "application/json", bytes.NewReader([]byte(samplePayload)))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	c.wait(t, 1)
	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.msgs, 1, "duplicate delivery must be dropped")
	assert.Equal(t, "hola", c.msgs[0].Text.Body)
	assert.Equal(t, "Ana", c.names[0])
}

func TestSignatureEnforced(t *testing.T) {
	var c capture
	s := NewServer(":0", "v", "topsecret", c.handler, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	body := []byte(samplePayload)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("topsecret", body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	c.wait(t, 1)
}

func TestMalformedPayloadStillAcked(t *testing.T) {
	s := NewServer(":0", "v", "", func(context.Context, whatsapp.Message, string) {}, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
