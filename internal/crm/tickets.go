package crm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Ticket is a created helpdesk or sales ticket.
type Ticket struct {
	ID      int
	Subject string
}

// Contact is a directory entry from the CRM contact database.
type Contact struct {
	Name     string
	Email    string
	Phone    string
	Mobile   string
	Function string
	City     string
}

// CreateTicket opens a helpdesk ticket attributed to the sender. The ticket
// body is enriched with the sender's phone and company so agents have
// context without opening the conversation.
func (c *Client) CreateTicket(ctx context.Context, teamID int, subject, description, phone, company, contactName string) (*Ticket, error) {
	if subject == "" {
		subject = "WhatsApp request"
	}
	partnerID, err := c.findOrCreatePartner(ctx, contactName, company, phone)
	if err != nil {
		c.Log.Warn("partner lookup failed, creating unattributed ticket", zap.Error(err))
		partnerID = 0
	}

	var body strings.Builder
	body.WriteString(description)
	body.WriteString("\n\n---\nReceived via WhatsApp")
	if phone != "" {
		fmt.Fprintf(&body, "\nPhone: %s", phone)
	}
	if company != "" {
		fmt.Fprintf(&body, "\nCompany: %s", company)
	}
	if contactName != "" {
		fmt.Fprintf(&body, "\nContact: %s", contactName)
	}

	values := map[string]any{
		"name":        subject,
		"description": body.String(),
		"team_id":     teamID,
	}
	if partnerID > 0 {
		values["partner_id"] = partnerID
	}

	var id int
	if err := c.executeKw(ctx, "helpdesk.ticket", "create", []any{values}, nil, &id); err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}
	c.Log.Info("ticket created", zap.Int("id", id), zap.Int("team_id", teamID))
	return &Ticket{ID: id, Subject: subject}, nil
}

// findOrCreatePartner resolves the contact record for a name, creating a
// minimal one when no match exists. Returns 0 when name is empty.
func (c *Client) findOrCreatePartner(ctx context.Context, name, company, phone string) (int, error) {
	if name == "" {
		name = company
	}
	if name == "" {
		return 0, nil
	}

	var ids []int
	err := c.executeKw(ctx, "res.partner", "search",
		[]any{[]any{[]any{"name", "ilike", name}}},
		map[string]any{"limit": 1}, &ids)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	values := map[string]any{"name": name}
	if phone != "" {
		values["phone"] = phone
	}
	if company != "" && company != name {
		values["company_name"] = company
	}
	var id int
	if err := c.executeKw(ctx, "res.partner", "create", []any{values}, nil, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// SearchContacts finds CRM contacts whose name, email, or role matches the
// query.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty contact query")
	}

	domain := []any{
		"|", "|",
		[]any{"name", "ilike", query},
		[]any{"email", "ilike", query},
		[]any{"function", "ilike", query},
	}
	var rows []struct {
		Name     string `json:"name"`
		Email    any    `json:"email"`
		Phone    any    `json:"phone"`
		Mobile   any    `json:"mobile"`
		Function any    `json:"function"`
		City     any    `json:"city"`
	}
	err := c.executeKw(ctx, "res.partner", "search_read",
		[]any{domain},
		map[string]any{
			"fields": []string{"name", "email", "phone", "mobile", "function", "city"},
			"limit":  5,
		}, &rows)
	if err != nil {
		return nil, fmt.Errorf("searching contacts: %w", err)
	}

	contacts := make([]Contact, 0, len(rows))
	for _, r := range rows {
		contacts = append(contacts, Contact{
			Name:     r.Name,
			Email:    optString(r.Email),
			Phone:    optString(r.Phone),
			Mobile:   optString(r.Mobile),
			Function: optString(r.Function),
			City:     optString(r.City),
		})
	}
	return contacts, nil
}

// optString unwraps Odoo's habit of returning false for empty char fields.
func optString(v any) string {
	s, _ := v.(string)
	return s
}
