package track

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hybridz/shipdesk-whatsapp/internal/carrier"
)

// maxEvents caps how many recent scan events a snapshot carries.
const maxEvents = 3

// minTrackingLen rejects obviously malformed tracking numbers before any
// network call.
const minTrackingLen = 9

// TrackClient is the carrier call the tracker depends on.
type TrackClient interface {
	Track(ctx context.Context, trackingNumber string) (*carrier.TrackReply, error)
}

// Event is one scan in a shipment's history.
type Event struct {
	Time        string
	Description string
	Location    string
}

// Snapshot is a condensed view of a shipment's current state.
type Snapshot struct {
	TrackingNumber string
	Status         string
	CarrierStatus  string
	Events         []Event
}

// Tracker resolves tracking numbers into snapshots.
type Tracker struct {
	Carrier TrackClient
	Log     *zap.Logger
}

func NewTracker(client TrackClient, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{Carrier: client, Log: log}
}

// Track fetches and condenses the shipment state for a tracking number.
func (t *Tracker) Track(ctx context.Context, trackingNumber string) (*Snapshot, error) {
	number := strings.TrimSpace(trackingNumber)
	if len(number) < minTrackingLen {
		return nil, fmt.Errorf("tracking number %q looks invalid", number)
	}
	if t.Carrier == nil {
		return nil, fmt.Errorf("carrier tracking is not configured")
	}

	reply, err := t.Carrier.Track(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("tracking %s: %w", number, err)
	}
	return buildSnapshot(number, reply)
}

func buildSnapshot(number string, reply *carrier.TrackReply) (*Snapshot, error) {
	if len(reply.Output.CompleteTrackResults) == 0 {
		return nil, fmt.Errorf("no tracking data for %s", number)
	}
	results := reply.Output.CompleteTrackResults[0].TrackResults
	if len(results) == 0 {
		return nil, fmt.Errorf("no tracking data for %s", number)
	}
	result := results[0]
	if result.Error != nil {
		return nil, fmt.Errorf("carrier reported %s: %s", result.Error.Code, result.Error.Message)
	}

	snap := &Snapshot{TrackingNumber: number, Status: StatusUnknown}
	if sd := result.LatestStatusDetail; sd != nil {
		snap.Status = Normalize(sd.Code, sd.Description)
		snap.CarrierStatus = sd.Description
	}
	for i, scan := range result.ScanEvents {
		if i >= maxEvents {
			break
		}
		snap.Events = append(snap.Events, Event{
			Time:        formatScanTime(scan.Date),
			Description: scan.EventDescription,
			Location:    formatLocation(scan.ScanLocation),
		})
	}
	return snap, nil
}

// formatScanTime renders a carrier timestamp as dd/mm/yyyy hh:mm, falling
// back to the raw value when it does not parse.
func formatScanTime(raw string) string {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.Format("02/01/2006 15:04")
		}
	}
	return raw
}

func formatLocation(loc carrier.ScanLocation) string {
	switch {
	case loc.City != "" && loc.CountryCode != "":
		return loc.City + ", " + loc.CountryCode
	case loc.City != "":
		return loc.City
	default:
		return loc.CountryCode
	}
}
