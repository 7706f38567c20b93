package carrier

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Rating API wire types.

// RateRequest is the payload for a rate quote.
type RateRequest struct {
	AccountNumber     AccountNumber     `json:"accountNumber"`
	RequestedShipment RequestedShipment `json:"requestedShipment"`
}

type AccountNumber struct {
	Value string `json:"value"`
}

type RequestedShipment struct {
	Shipper                Party                  `json:"shipper"`
	Recipient              Party                  `json:"recipient"`
	PickupType             string                 `json:"pickupType"`
	RateRequestType        []string               `json:"rateRequestType"`
	PreferredCurrency      string                 `json:"preferredCurrency"`
	PackageCount           int                    `json:"packageCount"`
	RequestedPackageLineItems []PackageLineItem   `json:"requestedPackageLineItems"`
	ShipDateStamp          string                 `json:"shipDateStamp"`
	CustomsClearanceDetail *CustomsClearanceDetail `json:"customsClearanceDetail,omitempty"`
}

type Party struct {
	Address Address `json:"address"`
}

type Address struct {
	PostalCode  string `json:"postalCode"`
	CountryCode string `json:"countryCode"`
}

type PackageLineItem struct {
	Weight     Weight      `json:"weight"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
}

type Weight struct {
	Units string  `json:"units"`
	Value float64 `json:"value"`
}

type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Units  string  `json:"units"`
}

type CustomsClearanceDetail struct {
	DutiesPayment DutiesPayment `json:"dutiesPayment"`
	Commodities   []Commodity   `json:"commodities"`
}

type DutiesPayment struct {
	PaymentType string `json:"paymentType"`
}

type Commodity struct {
	Description   string       `json:"description"`
	Quantity      int          `json:"quantity"`
	QuantityUnits string       `json:"quantityUnits"`
	Weight        Weight       `json:"weight"`
	CustomsValue  CustomsValue `json:"customsValue"`
}

type CustomsValue struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// RateReply is the rating response envelope.
type RateReply struct {
	Output RateOutput `json:"output"`
}

type RateOutput struct {
	RateReplyDetails []RateReplyDetail `json:"rateReplyDetails"`
}

// RateReplyDetail is one candidate service tier.
type RateReplyDetail struct {
	ServiceType          string                `json:"serviceType"`
	ServiceName          string                `json:"serviceName"`
	RatedShipmentDetails []RatedShipmentDetail `json:"ratedShipmentDetails"`
	Commit               *Commit               `json:"commit,omitempty"`
	OperationalDetail    *OperationalDetail    `json:"operationalDetail,omitempty"`
}

type RatedShipmentDetail struct {
	TotalNetCharge float64 `json:"totalNetCharge"`
	Currency       string  `json:"currency"`
}

// Commit carries transit commitment data. TransitDays has shipped both as a
// flat string and as an object across API revisions, so it is kept raw.
type Commit struct {
	DateDetail  *DateDetail     `json:"dateDetail,omitempty"`
	TransitDays json.RawMessage `json:"transitDays,omitempty"`
}

type DateDetail struct {
	DayCount int `json:"dayCount"`
}

type OperationalDetail struct {
	TransitDays string `json:"transitDays,omitempty"`
}

// TransitDaysString extracts the transit-day count from the first populated
// shape: commit day count, flat commit string, then operational detail.
// Returns "" when none is present.
func (d *RateReplyDetail) TransitDaysString() string {
	if c := d.Commit; c != nil {
		if c.DateDetail != nil && c.DateDetail.DayCount > 0 {
			return strconv.Itoa(c.DateDetail.DayCount)
		}
		if s := flatString(c.TransitDays); s != "" {
			return s
		}
	}
	if d.OperationalDetail != nil && d.OperationalDetail.TransitDays != "" {
		return d.OperationalDetail.TransitDays
	}
	return ""
}

// flatString decodes raw JSON that is a plain string or number; objects and
// other shapes yield "".
func flatString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '{' || raw[0] == '[' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Tracking API wire types.

// TrackRequest is the payload for a tracking lookup.
type TrackRequest struct {
	IncludeDetailedScans bool           `json:"includeDetailedScans"`
	TrackingInfo         []TrackingInfo `json:"trackingInfo"`
}

type TrackingInfo struct {
	TrackingNumberInfo TrackingNumberInfo `json:"trackingNumberInfo"`
}

type TrackingNumberInfo struct {
	TrackingNumber string `json:"trackingNumber"`
}

// TrackReply is the tracking response envelope.
type TrackReply struct {
	Output TrackOutput `json:"output"`
}

type TrackOutput struct {
	CompleteTrackResults []CompleteTrackResult `json:"completeTrackResults"`
}

type CompleteTrackResult struct {
	TrackingNumber string        `json:"trackingNumber"`
	TrackResults   []TrackResult `json:"trackResults"`
}

type TrackResult struct {
	LatestStatusDetail *StatusDetail `json:"latestStatusDetail,omitempty"`
	ScanEvents         []RawScanEvent `json:"scanEvents,omitempty"`
	Error              *TrackError    `json:"error,omitempty"`
}

type StatusDetail struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type RawScanEvent struct {
	Date             string       `json:"date"`
	EventDescription string       `json:"eventDescription"`
	ScanLocation     ScanLocation `json:"scanLocation"`
}

type ScanLocation struct {
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
}

type TrackError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// tokenResponse is the OAuth2 client-credentials grant response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}
