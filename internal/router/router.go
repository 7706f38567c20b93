// Package router is the conversation brain: it gates each inbound message
// on the sender's identity and verification state, runs intent extraction,
// dispatches the resulting action, and delivers the reply.
package router

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hybridz/shipdesk-whatsapp/internal/crm"
	"github.com/hybridz/shipdesk-whatsapp/internal/gateway"
	"github.com/hybridz/shipdesk-whatsapp/internal/intent"
	"github.com/hybridz/shipdesk-whatsapp/internal/profile"
	"github.com/hybridz/shipdesk-whatsapp/internal/rate"
	"github.com/hybridz/shipdesk-whatsapp/internal/relay"
	"github.com/hybridz/shipdesk-whatsapp/internal/store"
	"github.com/hybridz/shipdesk-whatsapp/internal/track"
	"github.com/hybridz/shipdesk-whatsapp/internal/whatsapp"
)

// Messenger delivers messages and acknowledgements to WhatsApp.
type Messenger interface {
	SendText(ctx context.Context, to, text string) (*whatsapp.SendMessageResponse, error)
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Interpreter extracts actions from text and transcribes voice notes.
type Interpreter interface {
	Interpret(ctx context.Context, text string, history []intent.Turn, userContext string) intent.Action
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Quoter prices shipments.
type Quoter interface {
	Quote(ctx context.Context, req rate.QuoteRequest) rate.Result
}

// ShipmentTracker resolves tracking numbers.
type ShipmentTracker interface {
	Track(ctx context.Context, trackingNumber string) (*track.Snapshot, error)
}

// Ticketing is the CRM surface the router uses.
type Ticketing interface {
	Configured() bool
	CreateTicket(ctx context.Context, teamID int, subject, description, phone, company, contactName string) (*crm.Ticket, error)
	SearchContacts(ctx context.Context, query string) ([]crm.Contact, error)
}

// Profiles resolves and mutates sender identity and verification state.
type Profiles interface {
	Resolve(ctx context.Context, phone string) *profile.Context
	Register(ctx context.Context, phone, company, name, nickname string) (*profile.Context, error)
	SetNickname(ctx context.Context, phone, nickname string) error
	SetRole(ctx context.Context, phone, role string) error
	Secret(ctx context.Context, phone string) (string, error)

	IsPending(phone string) bool
	SetPending(phone string)
	ClearPending(phone string)
	ValidatedToday(phone string) bool
	MarkValidated(phone string)
}

// Transcript persists conversation state.
type Transcript interface {
	ConversationID(phone string) (int64, error)
	AppendMessage(conversationID int64, role, content, msgType string) error
	History(conversationID int64, limit int) ([]store.Message, error)
	SaveQuote(conversationID int64, phone string, req rate.QuoteRequest, res rate.Result) error
}

// EventSink receives console feed events.
type EventSink interface {
	Publish(ev gateway.Event)
}

// Router wires the pieces together.
type Router struct {
	Messenger Messenger
	Interp    Interpreter
	Quoter    Quoter
	Tracker   ShipmentTracker
	CRM       Ticketing
	Profiles  Profiles
	Store     Transcript
	Events    EventSink

	HelpdeskTeamID int
	SalesTeamID    int
	HistoryLimit   int
	Log            *zap.Logger
}

const apology = "Sorry, something went wrong on our side. Please try again in a few minutes."

// Process handles one inbound message end to end. It never panics outward:
// the transport layer has already acknowledged the message, so the worst
// outcome is an apology.
func (r *Router) Process(ctx context.Context, msg whatsapp.Message, contactName string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Log.Error("panic while handling message",
				zap.String("from", msg.From),
				zap.Any("panic", rec))
			if msg.From != "" {
				r.send(ctx, msg.From, apology)
			}
		}
	}()

	if err := r.Messenger.MarkRead(ctx, msg.ID); err != nil {
		r.Log.Debug("mark read failed", zap.String("id", msg.ID), zap.Error(err))
	}

	text, ok := r.extractText(ctx, msg)
	if !ok {
		return
	}

	user := r.Profiles.Resolve(ctx, msg.From)
	if user.Blocked {
		r.Log.Info("dropping message from blocked sender", zap.String("from", msg.From))
		return
	}

	if r.Profiles.IsPending(msg.From) {
		r.verifySecret(ctx, msg.From, text)
		return
	}

	// a staff member with a key on file must re-verify every day before
	// anything is dispatched for them
	if user.Role == profile.RoleEmployee && !r.Profiles.ValidatedToday(msg.From) {
		secret, err := r.Profiles.Secret(ctx, msg.From)
		if err != nil {
			r.Log.Warn("secret lookup failed", zap.String("phone", msg.From), zap.Error(err))
		} else if secret != "" {
			r.Profiles.SetPending(msg.From)
			r.send(ctx, msg.From, "Before we go on, please send me your access key to verify it's you.")
			return
		}
	}

	convID, err := r.Store.ConversationID(msg.From)
	if err != nil {
		r.Log.Error("conversation lookup failed", zap.Error(err))
		r.send(ctx, msg.From, apology)
		return
	}
	if err := r.Store.AppendMessage(convID, "user", text, msg.Type); err != nil {
		r.Log.Warn("storing inbound message failed", zap.Error(err))
	}
	history := r.loadHistory(convID)

	action := r.Interp.Interpret(ctx, text, history, r.describe(user))
	action = r.gate(user, action)
	r.publish(gateway.Event{
		Type: "message", Phone: msg.From, Name: contactName,
		Action: string(action.Kind), Text: text,
	})

	reply := r.dispatch(ctx, convID, msg.From, user, action)
	if strings.TrimSpace(reply) == "" {
		reply = "How can I help you today?"
	}
	if err := r.Store.AppendMessage(convID, "model", reply, "text"); err != nil {
		r.Log.Warn("storing reply failed", zap.Error(err))
	}
	r.send(ctx, msg.From, reply)
}

// extractText turns the message into text, transcribing voice notes and
// politely declining anything else.
func (r *Router) extractText(ctx context.Context, msg whatsapp.Message) (string, bool) {
	switch {
	case msg.Text != nil && strings.TrimSpace(msg.Text.Body) != "":
		return msg.Text.Body, true
	case msg.Audio != nil:
		audio, err := r.Messenger.DownloadMedia(ctx, msg.Audio.ID)
		if err != nil {
			r.Log.Warn("voice note download failed", zap.Error(err))
			r.send(ctx, msg.From, "I couldn't download your voice note. Could you type it instead?")
			return "", false
		}
		transcript, err := r.Interp.Transcribe(ctx, audio, msg.Audio.MimeType)
		if err != nil {
			r.Log.Warn("transcription failed", zap.Error(err))
			r.send(ctx, msg.From, "I couldn't make out that voice note. Could you type it instead?")
			return "", false
		}
		if strings.TrimSpace(transcript) == "" {
			r.send(ctx, msg.From, "The voice note seems to be empty. Could you type your message?")
			return "", false
		}
		return transcript, true
	case msg.Image != nil, msg.Document != nil, msg.Video != nil, msg.Sticker != nil, msg.Location != nil:
		r.send(ctx, msg.From, "For now I can only read text and voice messages. Could you describe it in words?")
		return "", false
	default:
		r.Log.Debug("unsupported message type", zap.String("type", msg.Type))
		return "", false
	}
}

// gate restricts the action taxonomy by sender state. Unidentified senders
// may only chat or register; everything else becomes a request for their
// details.
func (r *Router) gate(user *profile.Context, action intent.Action) intent.Action {
	if user.Known() {
		return action
	}
	switch action.Kind {
	case intent.KindChat, intent.KindAsk, intent.KindRegisterUser:
		return action
	default:
		return intent.Chat("I'd love to help with that! First, could you tell me your full name and the company you work with, so I can set you up?")
	}
}

// describe builds the user-context line handed to the interpreter.
func (r *Router) describe(user *profile.Context) string {
	desc := user.Describe()
	if user.Role == profile.RoleEmployee {
		if r.Profiles.ValidatedToday(user.Phone) {
			desc += " They are verified for today."
		} else {
			desc += " They have not verified their identity today."
		}
	}
	return desc
}

// verifySecret consumes the sender's next message as their verification
// secret, comparing against a fresh directory read.
func (r *Router) verifySecret(ctx context.Context, phone, text string) {
	expected, err := r.Profiles.Secret(ctx, phone)
	if err != nil {
		r.Log.Warn("secret lookup failed", zap.String("phone", phone), zap.Error(err))
		r.Profiles.ClearPending(phone)
		r.send(ctx, phone, apology)
		return
	}
	if expected == "" {
		// no secret on file; let them through provisionally
		r.Profiles.ClearPending(phone)
		r.send(ctx, phone, "You don't have an access key on file yet, so I'll continue without verification. Ask the office to set one up for you.")
		return
	}
	if strings.TrimSpace(text) == expected {
		r.Profiles.MarkValidated(phone)
		r.Profiles.ClearPending(phone)
		r.publish(gateway.Event{Type: "verified", Phone: phone})
		r.send(ctx, phone, "Verified! You're all set for today. What do you need?")
		return
	}
	r.send(ctx, phone, "That key doesn't match. Please send your access key again.")
}

func (r *Router) loadHistory(convID int64) []intent.Turn {
	limit := r.HistoryLimit
	if limit <= 0 {
		limit = 10
	}
	stored, err := r.Store.History(convID, limit)
	if err != nil {
		r.Log.Warn("history load failed", zap.Error(err))
		return nil
	}
	turns := make([]intent.Turn, 0, len(stored))
	for _, m := range stored {
		turns = append(turns, intent.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// send formats and delivers a reply, splitting it when WhatsApp's length
// cap requires.
func (r *Router) send(ctx context.Context, to, text string) {
	for _, chunk := range relay.Split(relay.Format(text), whatsapp.MaxTextLen) {
		if _, err := r.Messenger.SendText(ctx, to, chunk); err != nil {
			r.Log.Error("reply delivery failed", zap.String("to", to), zap.Error(err))
			return
		}
	}
	r.publish(gateway.Event{Type: "reply", Phone: to, Text: text})
}

func (r *Router) publish(ev gateway.Event) {
	if r.Events != nil {
		r.Events.Publish(ev)
	}
}
