package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("key", "secret", srv.URL, nil)
	c.HTTPClient = srv.Client()
	return c, srv
}

func tokenHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": token, "expires_in": 3600})
	}
}

func TestRateQuoteAuthenticatesFirst(t *testing.T) {
	var tokens, quotes int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokens, 1)
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.FormValue("grant_type"))
		}
		tokenHandler("tok-1")(w, r)
	})
	mux.HandleFunc("/rate/v1/rates/quotes", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&quotes, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(RateReply{Output: RateOutput{RateReplyDetails: []RateReplyDetail{
			{ServiceType: "FEDEX_INTERNATIONAL_PRIORITY"},
		}}})
	})

	c, _ := newTestClient(t, mux)
	reply, err := c.RateQuote(context.Background(), RateRequest{})
	if err != nil {
		t.Fatalf("RateQuote: %v", err)
	}
	if len(reply.Output.RateReplyDetails) != 1 {
		t.Fatalf("got %d details, want 1", len(reply.Output.RateReplyDetails))
	}
	if tokens != 1 || quotes != 1 {
		t.Errorf("tokens=%d quotes=%d, want 1 each", tokens, quotes)
	}
}

func TestRateQuoteRefreshesButDoesNotRetry(t *testing.T) {
	var tokens, quotes int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokens, 1)
		if n == 1 {
			tokenHandler("stale")(w, r)
			return
		}
		tokenHandler("fresh")(w, r)
	})
	mux.HandleFunc("/rate/v1/rates/quotes", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&quotes, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	c, _ := newTestClient(t, mux)
	_, err := c.RateQuote(context.Background(), RateRequest{})
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if quotes != 1 {
		t.Errorf("quotes = %d, want 1 (no inline retry)", quotes)
	}
	if tokens != 2 {
		t.Errorf("tokens = %d, want 2 (refresh for next call)", tokens)
	}
	// The refreshed token is used on the next invocation.
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != "fresh" {
		t.Errorf("stored token = %q, want fresh", tok)
	}
}

func TestTrackRetriesAfterRefresh(t *testing.T) {
	var trackCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", tokenHandler("tok"))
	mux.HandleFunc("/track/v1/trackingnumbers", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&trackCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(TrackReply{Output: TrackOutput{CompleteTrackResults: []CompleteTrackResult{
			{TrackingNumber: "123456789012"},
		}}})
	})

	c, _ := newTestClient(t, mux)
	reply, err := c.Track(context.Background(), "123456789012")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if trackCalls != 2 {
		t.Errorf("track calls = %d, want 2", trackCalls)
	}
	if len(reply.Output.CompleteTrackResults) != 1 {
		t.Fatalf("got %d results", len(reply.Output.CompleteTrackResults))
	}
}

func TestTransitDaysString(t *testing.T) {
	cases := []struct {
		name   string
		detail RateReplyDetail
		want   string
	}{
		{"day count wins", RateReplyDetail{
			Commit:            &Commit{DateDetail: &DateDetail{DayCount: 3}, TransitDays: json.RawMessage(`"5"`)},
			OperationalDetail: &OperationalDetail{TransitDays: "7"},
		}, "3"},
		{"flat commit string", RateReplyDetail{
			Commit: &Commit{TransitDays: json.RawMessage(`"2"`)},
		}, "2"},
		{"commit object ignored", RateReplyDetail{
			Commit:            &Commit{TransitDays: json.RawMessage(`{"minimumTransitTime":"TWO_DAYS"}`)},
			OperationalDetail: &OperationalDetail{TransitDays: "4"},
		}, "4"},
		{"numeric commit", RateReplyDetail{
			Commit: &Commit{TransitDays: json.RawMessage(`6`)},
		}, "6"},
		{"nothing present", RateReplyDetail{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.detail.TransitDaysString(); got != tc.want {
				t.Errorf("TransitDaysString() = %q, want %q", got, tc.want)
			}
		})
	}
}
