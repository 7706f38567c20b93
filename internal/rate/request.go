package rate

// Package describes one box in a multi-package shipment. Dimensions are in
// centimeters and optional; a package is only dimensioned on the wire when
// all three sides are present.
type Package struct {
	WeightKg float64 `json:"weight_kg,omitempty"`
	Length   float64 `json:"length,omitempty"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
}

// QuoteRequest is a shipment description assembled from conversation. Field
// names double as the extraction contract, so zero values mean "not stated".
type QuoteRequest struct {
	OriginCountry      string    `json:"origin_country,omitempty"`
	OriginCity         string    `json:"origin_city,omitempty"`
	OriginPostal       string    `json:"origin_postal,omitempty"`
	DestinationCountry string    `json:"destination_country,omitempty"`
	DestinationCity    string    `json:"destination_city,omitempty"`
	DestinationPostal  string    `json:"destination_postal,omitempty"`
	WeightKg           float64   `json:"weight_kg,omitempty"`
	IsPallet           bool      `json:"is_pallet,omitempty"`
	NumBoxes           int       `json:"num_boxes,omitempty"`
	Packages           []Package `json:"packages,omitempty"`
	DeclaredValue      float64   `json:"declared_value,omitempty"`
	Currency           string    `json:"currency,omitempty"`
	ShipDate           string    `json:"ship_date,omitempty"`
}

// Option is one priced service tier, normalized to USD.
type Option struct {
	ServiceType string  `json:"service_type"`
	ServiceName string  `json:"service_name"`
	TotalCharge float64 `json:"total_charge"`
	Currency    string  `json:"currency"`
	TransitDays string  `json:"transit_days"`
	Converted   bool    `json:"converted,omitempty"`
}

// Result is the outcome of a quote computation.
type Result struct {
	Success   bool     `json:"success"`
	QuoteType string   `json:"quote_type"`
	Amount    float64  `json:"amount,omitempty"`
	PerKg     float64  `json:"per_kg,omitempty"`
	WeightKg  float64  `json:"weight_kg,omitempty"`
	Options   []Option `json:"options,omitempty"`
	Account   string   `json:"account,omitempty"`
	StaleRate bool     `json:"stale_rate,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}

// Quote type labels.
const (
	TypeFixed    = "fixed_rate"
	TypeExternal = "external_rate"
)
