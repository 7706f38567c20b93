// Package webhook receives WhatsApp events from the Meta platform. Incoming
// messages are acknowledged immediately and dispatched to the handler on a
// goroutine; the platform redelivers anything not answered quickly.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hybridz/shipdesk-whatsapp/internal/store"
	"github.com/hybridz/shipdesk-whatsapp/internal/whatsapp"
)

// Handler processes one inbound message. It runs on its own goroutine after
// the webhook has already been acknowledged.
type Handler func(ctx context.Context, msg whatsapp.Message, contactName string)

// Server is the webhook HTTP server.
type Server struct {
	Addr        string
	VerifyToken string
	Secret      string
	Handle      Handler
	StatsFn     func() (store.Stats, error)
	Log         *zap.Logger

	seen sync.Map
	http *http.Server
}

func NewServer(addr, verifyToken, secret string, handle Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Addr:        addr,
		VerifyToken: verifyToken,
		Secret:      secret,
		Handle:      handle,
		Log:         log,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/webhook", s.handleVerify)
	r.Post("/webhook", s.handleEvent)
	return r
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("webhook server listening", zap.String("addr", s.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.StatsFn == nil {
		http.Error(w, "stats unavailable", http.StatusNotFound)
		return
	}
	stats, err := s.StatsFn()
	if err != nil {
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleVerify answers Meta's subscription handshake.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.VerifyToken {
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	s.Log.Warn("webhook verification rejected")
	http.Error(w, "verification failed", http.StatusForbidden)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if s.Secret != "" && !s.validSignature(r.Header.Get("X-Hub-Signature-256"), body) {
		s.Log.Warn("webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.Log.Warn("undecodable webhook payload", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := contactNames(change.Value.Contacts)
			for _, msg := range change.Value.Messages {
				if _, dup := s.seen.LoadOrStore(msg.ID, time.Now()); dup {
					s.Log.Debug("duplicate message skipped", zap.String("id", msg.ID))
					continue
				}
				go s.Handle(context.Background(), msg, names[msg.From])
			}
		}
	}

	// always ack so the platform does not redeliver
	w.WriteHeader(http.StatusOK)
}

func (s *Server) validSignature(header string, body []byte) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write(body)
	expected := prefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}

func contactNames(contacts []whatsapp.Contact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		names[c.WaID] = c.Profile.Name
	}
	return names
}
