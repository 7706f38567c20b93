package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("token", "12345", srv.URL, 3, nil)
	c.HTTPClient = srv.Client()
	return c
}

func okResponse(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(SendMessageResponse{})
}

func TestSendTextTruncates(t *testing.T) {
	var got SendMessageRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		okResponse(w)
	})

	long := strings.Repeat("x", MaxTextLen+500)
	_, err := c.SendText(context.Background(), "573001234567", long)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(got.Text.Body) > MaxTextLen {
		t.Errorf("body is %d bytes, over the cap", len(got.Text.Body))
	}
	if !strings.HasSuffix(got.Text.Body, "...") {
		t.Errorf("truncated body should end with ellipsis")
	}
}

func TestSendTextTruncatesOnRuneBoundary(t *testing.T) {
	var got SendMessageRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		okResponse(w)
	})

	long := strings.Repeat("ñ", MaxTextLen)
	_, err := c.SendText(context.Background(), "573001234567", long)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if !utf8.ValidString(got.Text.Body) {
		t.Errorf("truncation split a rune: %q", got.Text.Body[len(got.Text.Body)-8:])
	}
	if !strings.HasSuffix(got.Text.Body, "...") {
		t.Errorf("truncated body should end with ellipsis")
	}
}

func TestSendTextAuthFailureNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.SendText(context.Background(), "573001234567", "hi")
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSendTextUsesBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/12345/messages") {
			t.Errorf("path = %q", r.URL.Path)
		}
		okResponse(w)
	})
	if _, err := c.SendText(context.Background(), "573001234567", "hi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	var got MarkReadRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success": true}`))
	})
	if err := c.MarkRead(context.Background(), "wamid.abc"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if got.Status != "read" || got.MessageID != "wamid.abc" {
		t.Errorf("payload = %+v", got)
	}
}

func TestDownloadMedia(t *testing.T) {
	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/media-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(MediaResponse{URL: base + "/binary", MimeType: "audio/ogg"})
	})
	mux.HandleFunc("/binary", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ogg-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	c := NewClient("token", "12345", srv.URL, 1, nil)
	c.HTTPClient = srv.Client()

	data, err := c.DownloadMedia(context.Background(), "media-1")
	if err != nil {
		t.Fatalf("DownloadMedia: %v", err)
	}
	if string(data) != "ogg-bytes" {
		t.Errorf("data = %q", data)
	}
}
