package router

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hybridz/shipdesk-whatsapp/internal/gateway"
	"github.com/hybridz/shipdesk-whatsapp/internal/intent"
	"github.com/hybridz/shipdesk-whatsapp/internal/profile"
)

// dispatch executes the gated action and returns the reply text.
func (r *Router) dispatch(ctx context.Context, convID int64, phone string, user *profile.Context, action intent.Action) string {
	switch action.Kind {
	case intent.KindChat, intent.KindAsk:
		return action.Message
	case intent.KindQuote:
		return r.handleQuote(ctx, convID, phone, action)
	case intent.KindTrack:
		return r.handleTrack(ctx, action)
	case intent.KindSupport:
		return r.handleTicket(ctx, phone, user, action, r.HelpdeskTeamID, "support request")
	case intent.KindOrder:
		return r.handleOrder(ctx, phone, user, action)
	case intent.KindContact:
		return r.handleContact(ctx, action)
	case intent.KindRegisterUser:
		return r.handleRegister(ctx, phone, user, action)
	case intent.KindUpdateNickname:
		return r.handleNickname(ctx, phone, action)
	case intent.KindClaimEmployee:
		return r.handleEmployeeClaim(ctx, user)
	default:
		return action.Message
	}
}

func (r *Router) handleQuote(ctx context.Context, convID int64, phone string, action intent.Action) string {
	if action.Quote == nil {
		if action.Message != "" {
			return action.Message
		}
		return "To quote your shipment I need at least the destination country and the total weight in kg."
	}

	result := r.Quoter.Quote(ctx, *action.Quote)
	if err := r.Store.SaveQuote(convID, phone, *action.Quote, result); err != nil {
		r.Log.Warn("quote audit write failed", zap.Error(err))
	}
	r.publish(gateway.Event{Type: "quote", Phone: phone, Text: result.QuoteType})

	if !result.Success {
		r.Log.Info("quote failed", zap.String("detail", result.Detail))
		return "I couldn't get a rate for that shipment right now. Please try again later or contact our support team."
	}
	return formatQuote(action.Message, *action.Quote, result)
}

func (r *Router) handleTrack(ctx context.Context, action intent.Action) string {
	number := strings.TrimSpace(action.TrackingNumber)
	if number == "" {
		return "Which tracking number should I look up?"
	}
	snap, err := r.Tracker.Track(ctx, number)
	if err != nil {
		r.Log.Info("tracking lookup failed", zap.String("number", number), zap.Error(err))
		return "I couldn't find information for tracking number " + number + ". Please double-check it."
	}
	return formatSnapshot(snap)
}

func (r *Router) handleTicket(ctx context.Context, phone string, user *profile.Context, action intent.Action, teamID int, kind string) string {
	if r.CRM == nil || !r.CRM.Configured() {
		return "Our ticketing system isn't available right now. Please email the office directly."
	}

	var subject, description, company, contact string
	if action.Ticket != nil {
		subject = action.Ticket.Subject
		description = action.Ticket.Description
		company = action.Ticket.CompanyName
		contact = action.Ticket.ContactName
	}
	if company == "" {
		company = user.Company
	}
	if contact == "" {
		contact = user.Name
	}
	if company == "" && contact == "" {
		return "To open a " + kind + " I need to know who it's for. What's your name and company?"
	}
	if description == "" {
		description = action.Message
	}

	ticket, err := r.CRM.CreateTicket(ctx, teamID, subject, description, phone, company, contact)
	if err != nil {
		r.Log.Error("ticket creation failed", zap.Error(err))
		return "I couldn't open the ticket right now. Please try again in a few minutes."
	}
	r.publish(gateway.Event{Type: "ticket", Phone: phone, Text: ticket.Subject})
	return formatTicket(ticket, kind)
}

func (r *Router) handleOrder(ctx context.Context, phone string, user *profile.Context, action intent.Action) string {
	// an order rides the same ticket pipeline, on the sales team, with the
	// quote summary folded into the description
	if action.Ticket != nil && action.Ticket.QuoteSummary != "" {
		if action.Ticket.Description != "" {
			action.Ticket.Description += "\n\n"
		}
		action.Ticket.Description += "Quoted: " + action.Ticket.QuoteSummary
		if action.Ticket.Subject == "" {
			action.Ticket.Subject = "New shipment order"
		}
	}
	return r.handleTicket(ctx, phone, user, action, r.SalesTeamID, "shipment order")
}

func (r *Router) handleContact(ctx context.Context, action intent.Action) string {
	if r.CRM == nil || !r.CRM.Configured() {
		return "I can't search the contact directory right now."
	}
	query := strings.TrimSpace(action.ContactQuery)
	if query == "" {
		return "Who are you looking for? A name, role, or email works."
	}
	contacts, err := r.CRM.SearchContacts(ctx, query)
	if err != nil {
		r.Log.Warn("contact search failed", zap.String("query", query), zap.Error(err))
		return "The contact search isn't responding right now. Please try again later."
	}
	if len(contacts) == 0 {
		return "I couldn't find anyone matching \"" + query + "\"."
	}
	return formatContacts(contacts)
}

func (r *Router) handleRegister(ctx context.Context, phone string, user *profile.Context, action intent.Action) string {
	if user.Known() {
		name := user.DisplayName()
		if name == "" {
			name = "you"
		}
		return "You're already registered, " + name + ". What can I do for you?"
	}
	reg := action.Registration
	if reg == nil || (reg.FullName == "" && reg.Company == "") {
		return "To register you I need your full name and the company you work with."
	}
	created, err := r.Profiles.Register(ctx, phone, reg.Company, reg.FullName, reg.Nickname)
	if err != nil {
		r.Log.Error("registration failed", zap.Error(err))
		return "I couldn't complete your registration just now. Please try again in a moment."
	}
	r.publish(gateway.Event{Type: "registered", Phone: phone, Name: created.Name})
	greeting := created.DisplayName()
	if greeting == "" {
		greeting = "welcome"
	}
	return "All set, " + greeting + "! You're registered now. How can I help you today?"
}

func (r *Router) handleNickname(ctx context.Context, phone string, action intent.Action) string {
	nickname := strings.TrimSpace(action.Nickname)
	if nickname == "" {
		return "What would you like me to call you?"
	}
	if err := r.Profiles.SetNickname(ctx, phone, nickname); err != nil {
		r.Log.Warn("nickname update failed", zap.Error(err))
		return "I'll call you " + nickname + " for now, but I couldn't save it permanently. Try again later?"
	}
	return "Done! I'll call you " + nickname + " from now on."
}

// handleEmployeeClaim promotes the sender to staff, or arms secret
// collection if they already are.
func (r *Router) handleEmployeeClaim(ctx context.Context, user *profile.Context) string {
	if user.Role != profile.RoleEmployee {
		if err := r.Profiles.SetRole(ctx, user.Phone, profile.RoleEmployee); err != nil {
			r.Log.Error("role update failed", zap.String("phone", user.Phone), zap.Error(err))
			return "I couldn't update your role just now. Please try again in a moment."
		}
		user.Role = profile.RoleEmployee
		return "Done! I've marked you as staff. Once the office sets up your access key, I'll ask for it once a day to verify it's you."
	}
	if r.Profiles.ValidatedToday(user.Phone) {
		return "You're already verified for today. What do you need?"
	}
	r.Profiles.SetPending(user.Phone)
	return "Please send me your access key to verify it's you."
}
