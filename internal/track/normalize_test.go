package track

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridz/shipdesk-whatsapp/internal/carrier"
)

func TestNormalizeCodeTable(t *testing.T) {
	cases := []struct {
		code, desc, want string
	}{
		{"DL", "anything", StatusDelivered},
		{"IT", "", StatusInTransit},
		{"PU", "", StatusPickedUp},
		{"OD", "", StatusOutForDelivery},
		{"CD", "", StatusInCustoms},
		{"SP", "", StatusLabelCreated},
		{"SE", "", StatusException},
		{"dl", "lowercase code still matches", StatusDelivered},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.code, tc.desc), "code %q", tc.code)
	}
}

func TestNormalizeKeywordFallback(t *testing.T) {
	cases := []struct {
		desc, want string
	}{
		{"Package received by carrier", StatusPickedUp},
		{"Departed FedEx hub MEMPHIS", StatusInTransit},
		{"On FedEx vehicle for delivery", StatusInTransit},
		{"International shipment release - Import clearance", StatusInCustoms},
		{"Delivery delay due to weather", StatusDelayed},
		{"Shipment exception - address hold", StatusException},
		{"Returned to shipper", "Returned to Sender"},
		{"Shipment information sent to FedEx", StatusLabelCreated},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize("", tc.desc), "desc %q", tc.desc)
	}
}

func TestNormalizeRawAndUnknown(t *testing.T) {
	assert.Equal(t, "Weird carrier state", Normalize("ZZ", "Weird carrier state"))
	assert.Equal(t, StatusUnknown, Normalize("", ""))
	assert.Equal(t, StatusUnknown, Normalize("ZZ", "  "))
}

type fakeTrackClient struct {
	reply *carrier.TrackReply
	err   error
	calls int
}

func (f *fakeTrackClient) Track(context.Context, string) (*carrier.TrackReply, error) {
	f.calls++
	return f.reply, f.err
}

func TestTrackerRejectsShortNumbers(t *testing.T) {
	fake := &fakeTrackClient{}
	tr := NewTracker(fake, nil)
	_, err := tr.Track(context.Background(), "1234")
	require.Error(t, err)
	assert.Equal(t, 0, fake.calls)
}

func TestTrackerSnapshot(t *testing.T) {
	fake := &fakeTrackClient{reply: &carrier.TrackReply{Output: carrier.TrackOutput{
		CompleteTrackResults: []carrier.CompleteTrackResult{{
			TrackingNumber: "123456789012",
			TrackResults: []carrier.TrackResult{{
				LatestStatusDetail: &carrier.StatusDetail{Code: "IT", Description: "In transit"},
				ScanEvents: []carrier.RawScanEvent{
					{Date: "2026-08-30T14:05:00-05:00", EventDescription: "Departed FedEx hub", ScanLocation: carrier.ScanLocation{City: "MEMPHIS", CountryCode: "US"}},
					{Date: "2026-08-29T09:00:00-05:00", EventDescription: "Picked up", ScanLocation: carrier.ScanLocation{City: "BOGOTA", CountryCode: "CO"}},
					{Date: "2026-08-28T08:00:00-05:00", EventDescription: "Label created", ScanLocation: carrier.ScanLocation{}},
					{Date: "2026-08-27T08:00:00-05:00", EventDescription: "should be dropped", ScanLocation: carrier.ScanLocation{}},
				},
			}},
		}},
	}}}
	tr := NewTracker(fake, nil)

	snap, err := tr.Track(context.Background(), "123456789012")
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, snap.Status)
	require.Len(t, snap.Events, 3)
	assert.Equal(t, "30/08/2026 14:05", snap.Events[0].Time)
	assert.Equal(t, "MEMPHIS, US", snap.Events[0].Location)
}

func TestTrackerCarrierError(t *testing.T) {
	fake := &fakeTrackClient{reply: &carrier.TrackReply{Output: carrier.TrackOutput{
		CompleteTrackResults: []carrier.CompleteTrackResult{{
			TrackResults: []carrier.TrackResult{{
				Error: &carrier.TrackError{Code: "TRACKING.TRACKINGNUMBER.NOTFOUND", Message: "not found"},
			}},
		}},
	}}}
	tr := NewTracker(fake, nil)
	_, err := tr.Track(context.Background(), "999999999999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
