// Package track looks up shipments and condenses carrier tracking replies
// into short, human-readable snapshots.
package track

import "strings"

// Canonical status labels.
const (
	StatusDelivered      = "Delivered"
	StatusOutForDelivery = "Out for Delivery"
	StatusPickedUp       = "Picked Up"
	StatusInTransit      = "In Transit"
	StatusInCustoms      = "In Customs"
	StatusDelayed        = "Delayed"
	StatusException      = "Exception"
	StatusReturning      = "Returned to Sender"
	StatusLabelCreated   = "Label Created"
	StatusUnknown        = "Unknown"
)

// statusCodes maps carrier status codes to canonical labels. Exact code
// matches take precedence over description keywords.
var statusCodes = map[string]string{
	"DL": StatusDelivered,
	"IT": StatusInTransit,
	"PU": StatusPickedUp,
	"OD": StatusOutForDelivery,
	"CD": StatusInCustoms,
	"IN": StatusLabelCreated,
	"SP": StatusLabelCreated,
	"PL": StatusLabelCreated,
	"DE": StatusException,
	"SE": StatusException,
	"OC": StatusException,
}

// keywordGroups are matched in order against the lowercased description;
// the first group with any hit wins.
var keywordGroups = []struct {
	status   string
	keywords []string
}{
	{StatusDelivered, []string{"delivered"}},
	{StatusOutForDelivery, []string{"out for delivery"}},
	{StatusPickedUp, []string{"picked up", "package received"}},
	{StatusInTransit, []string{"in transit", "departed", "arrived", "on fedex vehicle", "left origin"}},
	{StatusInCustoms, []string{"clearance", "customs"}},
	{StatusDelayed, []string{"delay"}},
	{StatusException, []string{"exception", "hold"}},
	{StatusReturning, []string{"return"}},
	{StatusLabelCreated, []string{"shipment information sent", "label"}},
}

// Normalize maps a carrier status code and free-text description to a
// canonical status. An unmatched description is returned verbatim; "Unknown"
// is reserved for when both inputs are empty.
func Normalize(code, description string) string {
	if s, ok := statusCodes[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return s
	}
	desc := strings.TrimSpace(description)
	lower := strings.ToLower(desc)
	for _, group := range keywordGroups {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.status
			}
		}
	}
	if desc != "" {
		return desc
	}
	return StatusUnknown
}
