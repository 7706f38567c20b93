// Package rate turns a shipment description into priced options. Shipments on
// the fixed-price lane are computed locally; everything else goes to the
// carrier's rating API and the reply is normalized to USD.
package rate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hybridz/shipdesk-whatsapp/internal/carrier"
	"github.com/hybridz/shipdesk-whatsapp/internal/config"
)

const kgToLb = 2.20462

// RateClient is the carrier call the engine depends on.
type RateClient interface {
	RateQuote(ctx context.Context, req carrier.RateRequest) (*carrier.RateReply, error)
}

// Engine computes quotes.
type Engine struct {
	Pricing config.PricingConfig
	Carrier RateClient
	Account string
	Log     *zap.Logger

	now func() time.Time
}

// NewEngine builds an Engine. carrierClient may be nil when only the fixed
// lane is configured; external quotes then fail gracefully.
func NewEngine(pricing config.PricingConfig, carrierClient RateClient, account string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Pricing: pricing,
		Carrier: carrierClient,
		Account: account,
		Log:     log,
		now:     time.Now,
	}
}

// Quote prices the shipment. Fixed-lane shipments never touch the network.
func (e *Engine) Quote(ctx context.Context, req QuoteRequest) Result {
	if e.onFixedLane(req) {
		return e.fixedQuote(req)
	}
	return e.externalQuote(ctx, req)
}

// onFixedLane reports whether the shipment qualifies for the fixed per-kg
// rate: the configured lane, boxes only, and under the weight ceiling.
func (e *Engine) onFixedLane(req QuoteRequest) bool {
	if req.IsPallet {
		return false
	}
	if req.WeightKg <= 0 || req.WeightKg >= e.Pricing.FixedMaxWeightKg {
		return false
	}
	origin := strings.ToUpper(strings.TrimSpace(req.OriginCountry))
	dest := strings.ToUpper(strings.TrimSpace(req.DestinationCountry))
	if origin != "" && origin != e.Pricing.FixedOriginCountry {
		return false
	}
	return dest == e.Pricing.FixedDestCountry
}

func (e *Engine) fixedQuote(req QuoteRequest) Result {
	amount := round2(req.WeightKg*e.Pricing.PerKgUSD + e.Pricing.PerAddressUSD)
	res := Result{
		Success:   true,
		QuoteType: TypeFixed,
		Amount:    amount,
		PerKg:     e.Pricing.PerKgUSD,
		WeightKg:  req.WeightKg,
		StaleRate: e.Pricing.RateStale(e.now()),
	}
	e.Log.Info("fixed rate quote",
		zap.Float64("weight_kg", req.WeightKg),
		zap.Float64("amount_usd", amount))
	return res
}

func (e *Engine) externalQuote(ctx context.Context, req QuoteRequest) Result {
	if e.Carrier == nil {
		return Result{QuoteType: TypeExternal, Detail: "carrier rating is not configured"}
	}
	wire, err := e.buildRateRequest(req)
	if err != nil {
		return Result{QuoteType: TypeExternal, Detail: err.Error()}
	}

	reply, err := e.Carrier.RateQuote(ctx, *wire)
	if err != nil {
		e.Log.Warn("carrier rate quote failed", zap.Error(err))
		return Result{QuoteType: TypeExternal, Detail: "the carrier rating service is unavailable right now"}
	}

	options := e.normalize(reply)
	if len(options) == 0 {
		return Result{QuoteType: TypeExternal, Detail: "no rates were returned for this shipment"}
	}
	return Result{
		Success:   true,
		QuoteType: TypeExternal,
		Amount:    options[0].TotalCharge,
		Options:   options,
		Account:   e.Account,
		WeightKg:  req.WeightKg,
		StaleRate: e.Pricing.RateStale(e.now()),
	}
}

// buildRateRequest assembles the carrier payload from the conversation-level
// shipment description.
func (e *Engine) buildRateRequest(req QuoteRequest) (*carrier.RateRequest, error) {
	origin := strings.ToUpper(strings.TrimSpace(req.OriginCountry))
	dest := strings.ToUpper(strings.TrimSpace(req.DestinationCountry))
	if origin == "" {
		origin = e.Pricing.FixedOriginCountry
	}
	if dest == "" {
		return nil, fmt.Errorf("destination country is required")
	}

	items := buildLineItems(req)
	if len(items) == 0 {
		return nil, fmt.Errorf("shipment weight is required")
	}

	shipDate := strings.TrimSpace(req.ShipDate)
	if shipDate == "" {
		shipDate = e.now().Format("2006-01-02")
	}

	shipment := carrier.RequestedShipment{
		Shipper:                   carrier.Party{Address: carrier.Address{PostalCode: req.OriginPostal, CountryCode: origin}},
		Recipient:                 carrier.Party{Address: carrier.Address{PostalCode: req.DestinationPostal, CountryCode: dest}},
		PickupType:                "CONTACT_FEDEX_TO_SCHEDULE",
		RateRequestType:           []string{"ACCOUNT", "LIST"},
		PreferredCurrency:         "USD",
		PackageCount:              len(items),
		RequestedPackageLineItems: items,
		ShipDateStamp:             shipDate,
	}

	if req.DeclaredValue > 0 {
		total := 0.0
		for _, it := range items {
			total += it.Weight.Value
		}
		shipment.CustomsClearanceDetail = &carrier.CustomsClearanceDetail{
			DutiesPayment: carrier.DutiesPayment{PaymentType: "SENDER"},
			Commodities: []carrier.Commodity{{
				Description:   "General merchandise",
				Quantity:      len(items),
				QuantityUnits: "PCS",
				Weight:        carrier.Weight{Units: "LB", Value: round1(total)},
				CustomsValue:  carrier.CustomsValue{Amount: req.DeclaredValue, Currency: "USD"},
			}},
		}
	}

	return &carrier.RateRequest{
		AccountNumber:     carrier.AccountNumber{Value: e.Account},
		RequestedShipment: shipment,
	}, nil
}

// buildLineItems produces one line item per package. Explicit per-package
// weights win; otherwise the total weight is split evenly across the declared
// box count. Dimensions ride along only when all three sides are known.
func buildLineItems(req QuoteRequest) []carrier.PackageLineItem {
	if len(req.Packages) > 0 {
		items := make([]carrier.PackageLineItem, 0, len(req.Packages))
		even := 0.0
		if req.WeightKg > 0 {
			even = req.WeightKg / float64(len(req.Packages))
		}
		for _, p := range req.Packages {
			kg := p.WeightKg
			if kg <= 0 {
				kg = even
			}
			if kg <= 0 {
				continue
			}
			item := carrier.PackageLineItem{
				Weight: carrier.Weight{Units: "LB", Value: round1(kg * kgToLb)},
			}
			if p.Length > 0 && p.Width > 0 && p.Height > 0 {
				item.Dimensions = &carrier.Dimensions{
					Length: p.Length, Width: p.Width, Height: p.Height, Units: "CM",
				}
			}
			items = append(items, item)
		}
		return items
	}

	if req.WeightKg <= 0 {
		return nil
	}
	count := req.NumBoxes
	if count < 1 {
		count = 1
	}
	per := round1(req.WeightKg / float64(count) * kgToLb)
	items := make([]carrier.PackageLineItem, count)
	for i := range items {
		items[i] = carrier.PackageLineItem{Weight: carrier.Weight{Units: "LB", Value: per}}
	}
	return items
}

// normalize converts the carrier reply into USD options sorted cheapest
// first. Charges in the configured local currency are divided by the
// conversion rate; other unknown currencies are kept as-is but flagged.
func (e *Engine) normalize(reply *carrier.RateReply) []Option {
	options := make([]Option, 0, len(reply.Output.RateReplyDetails))
	for _, detail := range reply.Output.RateReplyDetails {
		if len(detail.RatedShipmentDetails) == 0 {
			continue
		}
		rated := detail.RatedShipmentDetails[0]
		charge := rated.TotalNetCharge
		currency := strings.ToUpper(rated.Currency)
		converted := false
		switch currency {
		case "USD", "":
		case e.Pricing.LocalCurrency:
			if e.Pricing.ConversionRate > 0 {
				charge = charge / e.Pricing.ConversionRate
				converted = true
				e.Log.Info("converted charge to USD",
					zap.String("service", detail.ServiceType),
					zap.String("from", currency),
					zap.Float64("rate", e.Pricing.ConversionRate))
			}
		default:
			e.Log.Warn("unexpected rate currency",
				zap.String("service", detail.ServiceType),
				zap.String("currency", currency))
		}

		transit := detail.TransitDaysString()
		if transit == "" {
			transit = "N/A"
		}
		options = append(options, Option{
			ServiceType: detail.ServiceType,
			ServiceName: detail.ServiceName,
			TotalCharge: round2(charge),
			Currency:    currency,
			TransitDays: transit,
			Converted:   converted,
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].TotalCharge < options[j].TotalCharge
	})
	return options
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
