package router

import (
	"fmt"
	"strings"

	"github.com/hybridz/shipdesk-whatsapp/internal/crm"
	"github.com/hybridz/shipdesk-whatsapp/internal/rate"
	"github.com/hybridz/shipdesk-whatsapp/internal/track"
)

// maxAlternatives caps how many service tiers a quote reply lists beyond
// the cheapest.
const maxAlternatives = 3

func formatQuote(lead string, req rate.QuoteRequest, res rate.Result) string {
	var b strings.Builder
	if lead != "" {
		b.WriteString(lead)
		b.WriteString("\n\n")
	}

	switch res.QuoteType {
	case rate.TypeFixed:
		b.WriteString("*Shipping quote*\n")
		fmt.Fprintf(&b, "Weight: %.1f kg\n", res.WeightKg)
		fmt.Fprintf(&b, "Rate: $%.2f/kg + $%.2f per address\n", res.PerKg, res.Amount-res.PerKg*res.WeightKg)
		fmt.Fprintf(&b, "*Total: $%.2f USD*", res.Amount)
	case rate.TypeExternal:
		best := res.Options[0]
		b.WriteString("*Shipping quote*\n")
		fmt.Fprintf(&b, "Best option: %s\n", serviceLabel(best))
		fmt.Fprintf(&b, "*Total: $%.2f USD*", best.TotalCharge)
		if best.TransitDays != "N/A" {
			fmt.Fprintf(&b, " (approx. %s transit days)", best.TransitDays)
		}
		if len(res.Options) > 1 {
			b.WriteString("\n\nOther options:")
			for i, opt := range res.Options[1:] {
				if i >= maxAlternatives {
					break
				}
				fmt.Fprintf(&b, "\n- %s: $%.2f USD, %s transit days",
					serviceLabel(opt), opt.TotalCharge, opt.TransitDays)
			}
		}
	}

	if res.StaleRate {
		b.WriteString("\n\n_Heads up: the exchange rate behind this quote may be outdated; the final price could vary slightly._")
	}
	if req.DeclaredValue > 0 {
		fmt.Fprintf(&b, "\nDeclared value: $%.2f USD", req.DeclaredValue)
	}
	return b.String()
}

func serviceLabel(opt rate.Option) string {
	if opt.ServiceName != "" {
		return opt.ServiceName
	}
	return strings.ReplaceAll(opt.ServiceType, "_", " ")
}

func formatSnapshot(snap *track.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Tracking %s*\n", snap.TrackingNumber)
	fmt.Fprintf(&b, "Status: *%s*", snap.Status)
	if snap.CarrierStatus != "" && !strings.EqualFold(snap.CarrierStatus, snap.Status) {
		fmt.Fprintf(&b, " (%s)", snap.CarrierStatus)
	}
	if len(snap.Events) > 0 {
		b.WriteString("\n\nRecent activity:")
		for _, ev := range snap.Events {
			b.WriteString("\n- ")
			if ev.Time != "" {
				b.WriteString(ev.Time + ": ")
			}
			b.WriteString(ev.Description)
			if ev.Location != "" {
				b.WriteString(" (" + ev.Location + ")")
			}
		}
	}
	return b.String()
}

func formatTicket(ticket *crm.Ticket, kind string) string {
	return fmt.Sprintf("Your %s is in! Ticket *#%d*: \"%s\". Our team will get back to you soon.",
		kind, ticket.ID, ticket.Subject)
}

func formatContacts(contacts []crm.Contact) string {
	var b strings.Builder
	b.WriteString("Here's who I found:")
	for _, c := range contacts {
		b.WriteString("\n\n*" + c.Name + "*")
		if c.Function != "" {
			b.WriteString("\n" + c.Function)
		}
		if c.Email != "" {
			b.WriteString("\nEmail: " + c.Email)
		}
		phone := c.Mobile
		if phone == "" {
			phone = c.Phone
		}
		if phone != "" {
			b.WriteString("\nPhone: " + phone)
		}
		if c.City != "" {
			b.WriteString("\n" + c.City)
		}
	}
	return b.String()
}
