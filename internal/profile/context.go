// Package profile maintains who is talking to the assistant: a per-sender
// profile sourced from the CRM user directory, cached in memory, and
// mirrored to local storage so restarts do not forget anyone.
package profile

import "strings"

// Roles a directory row can carry.
const (
	RoleClient   = "client"
	RoleEmployee = "employee"
)

// Context is everything known about one sender.
type Context struct {
	Phone    string
	Company  string
	Name     string
	Nickname string
	Role     string
	Row      int
	Blocked  bool
}

// Known reports whether the sender matched a directory row.
func (c *Context) Known() bool {
	return c != nil && (c.Name != "" || c.Company != "")
}

// DisplayName picks the friendliest available name.
func (c *Context) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.Nickname != "" {
		return c.Nickname
	}
	if c.Name != "" {
		if first, _, found := strings.Cut(c.Name, " "); found {
			return first
		}
		return c.Name
	}
	return ""
}

// Describe renders the profile as a one-line context string for the
// language model.
func (c *Context) Describe() string {
	if !c.Known() {
		return "An unidentified sender; their name and company are not on file."
	}
	var b strings.Builder
	b.WriteString("Name: ")
	b.WriteString(c.Name)
	if c.Nickname != "" {
		b.WriteString(" (goes by ")
		b.WriteString(c.Nickname)
		b.WriteString(")")
	}
	if c.Company != "" {
		b.WriteString(", company: ")
		b.WriteString(c.Company)
	}
	if c.Role == RoleEmployee {
		b.WriteString(", a company employee")
	}
	return b.String()
}

// NormalizeRole folds the directory's role spellings into the two canonical
// roles.
func NormalizeRole(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "empleado", "employee", "staff":
		return RoleEmployee
	default:
		return RoleClient
	}
}

// NormalizePhone strips formatting so numbers compare by digits.
func NormalizePhone(phone string) string {
	return strings.NewReplacer("+", "", " ", "", "-", "").Replace(strings.TrimSpace(phone))
}

func lastDigits(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
