// Package intent turns free-form user messages into structured actions via
// an LLM, with a conservative parser that degrades to plain chat whenever
// the model's output is not usable.
package intent

import (
	"encoding/json"
	"strings"

	"github.com/hybridz/shipdesk-whatsapp/internal/rate"
)

// Kind labels the action taxonomy.
type Kind string

const (
	KindChat           Kind = "chat"
	KindAsk            Kind = "ask"
	KindQuote          Kind = "quote"
	KindTrack          Kind = "track"
	KindSupport        Kind = "support"
	KindOrder          Kind = "order"
	KindContact        Kind = "contact"
	KindRegisterUser   Kind = "register_user"
	KindUpdateNickname Kind = "update_nickname"
	KindClaimEmployee  Kind = "claim_employee"
)

var knownKinds = map[Kind]bool{
	KindChat: true, KindAsk: true, KindQuote: true, KindTrack: true,
	KindSupport: true, KindOrder: true, KindContact: true,
	KindRegisterUser: true, KindUpdateNickname: true, KindClaimEmployee: true,
}

// TicketData carries the fields for a support or order ticket.
type TicketData struct {
	Subject      string `json:"subject,omitempty"`
	Description  string `json:"description,omitempty"`
	CompanyName  string `json:"company_name,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	QuoteSummary string `json:"quote_summary,omitempty"`
}

// Registration carries the fields for a new-user registration.
type Registration struct {
	FullName string `json:"full_name,omitempty"`
	Company  string `json:"company,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// Action is one interpreted user intent. Message is always safe to show to
// the user; the payload pointer for the matching Kind is set when the model
// supplied data.
type Action struct {
	Kind    Kind
	Message string
	Missing []string

	Quote          *rate.QuoteRequest
	TrackingNumber string
	Ticket         *TicketData
	ContactQuery   string
	Registration   *Registration
	Nickname       string
}

// wireAction mirrors the JSON contract the model is prompted to emit.
type wireAction struct {
	Action         string          `json:"action"`
	Message        string          `json:"message"`
	Missing        []string        `json:"missing"`
	TrackingNumber string          `json:"tracking_number"`
	Data           json.RawMessage `json:"data"`
}

// Chat wraps text in a plain chat action.
func Chat(message string) Action {
	return Action{Kind: KindChat, Message: message}
}

// ParseAction extracts the structured action from raw model output. The
// model sometimes wraps JSON in prose or code fences, so the parser slices
// from the first '{' to the last '}'. Anything unparseable becomes a chat
// action carrying the raw text.
func ParseAction(raw string) Action {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Chat(raw)
	}

	var wire wireAction
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return Chat(raw)
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(wire.Action)))
	if !knownKinds[kind] {
		return Chat(raw)
	}

	act := Action{
		Kind:           kind,
		Message:        wire.Message,
		Missing:        wire.Missing,
		TrackingNumber: strings.TrimSpace(wire.TrackingNumber),
	}

	switch kind {
	case KindQuote:
		var q rate.QuoteRequest
		if len(wire.Data) > 0 && json.Unmarshal(wire.Data, &q) == nil {
			act.Quote = &q
		}
	case KindTrack:
		if act.TrackingNumber == "" && len(wire.Data) > 0 {
			var d struct {
				TrackingNumber string `json:"tracking_number"`
			}
			if json.Unmarshal(wire.Data, &d) == nil {
				act.TrackingNumber = strings.TrimSpace(d.TrackingNumber)
			}
		}
	case KindSupport, KindOrder:
		var td TicketData
		if len(wire.Data) > 0 && json.Unmarshal(wire.Data, &td) == nil {
			act.Ticket = &td
		}
	case KindContact:
		var d struct {
			Query string `json:"query"`
		}
		if len(wire.Data) > 0 && json.Unmarshal(wire.Data, &d) == nil {
			act.ContactQuery = strings.TrimSpace(d.Query)
		}
	case KindRegisterUser:
		var reg Registration
		if len(wire.Data) > 0 && json.Unmarshal(wire.Data, &reg) == nil {
			act.Registration = &reg
		}
	case KindUpdateNickname:
		var d struct {
			Nickname string `json:"nickname"`
		}
		if len(wire.Data) > 0 && json.Unmarshal(wire.Data, &d) == nil {
			act.Nickname = strings.TrimSpace(d.Nickname)
		}
	}
	return act
}
