package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionQuote(t *testing.T) {
	raw := "Here is the result:\n```json\n" + `{
		"action": "quote",
		"message": "Let me price that for you.",
		"data": {
			"destination_country": "US",
			"weight_kg": 25,
			"num_boxes": 3,
			"is_pallet": false
		}
	}` + "\n```"

	act := ParseAction(raw)
	assert.Equal(t, KindQuote, act.Kind)
	require.NotNil(t, act.Quote)
	assert.Equal(t, "US", act.Quote.DestinationCountry)
	assert.Equal(t, 25.0, act.Quote.WeightKg)
	assert.Equal(t, 3, act.Quote.NumBoxes)
}

func TestParseActionTrack(t *testing.T) {
	act := ParseAction(`{"action":"track","message":"Checking...","tracking_number":"123456789012"}`)
	assert.Equal(t, KindTrack, act.Kind)
	assert.Equal(t, "123456789012", act.TrackingNumber)

	// tracking number may also arrive inside data
	act = ParseAction(`{"action":"track","data":{"tracking_number":"987654321098"}}`)
	assert.Equal(t, "987654321098", act.TrackingNumber)
}

func TestParseActionSupport(t *testing.T) {
	act := ParseAction(`{"action":"support","message":"On it","data":{"subject":"Damaged box","description":"Box arrived crushed","company_name":"Acme"}}`)
	assert.Equal(t, KindSupport, act.Kind)
	require.NotNil(t, act.Ticket)
	assert.Equal(t, "Damaged box", act.Ticket.Subject)
	assert.Equal(t, "Acme", act.Ticket.CompanyName)
}

func TestParseActionRegister(t *testing.T) {
	act := ParseAction(`{"action":"register_user","message":"Welcome!","data":{"full_name":"Ana Gomez","company":"Acme","nickname":"Ana"}}`)
	assert.Equal(t, KindRegisterUser, act.Kind)
	require.NotNil(t, act.Registration)
	assert.Equal(t, "Ana Gomez", act.Registration.FullName)
}

func TestParseActionAskCarriesMissing(t *testing.T) {
	act := ParseAction(`{"action":"ask","message":"What's the destination?","missing":["destination_country","weight_kg"]}`)
	assert.Equal(t, KindAsk, act.Kind)
	assert.Equal(t, []string{"destination_country", "weight_kg"}, act.Missing)
}

func TestParseActionFallsBackToChat(t *testing.T) {
	cases := []string{
		"just a plain sentence with no json",
		`{"action":"launch_rocket","message":"nope"}`,
		`{"action": truncated garbage`,
		"",
	}
	for _, raw := range cases {
		act := ParseAction(raw)
		assert.Equal(t, KindChat, act.Kind, "raw=%q", raw)
	}
	// the raw text is preserved so the user still gets a reply
	act := ParseAction("hola, como estas?")
	assert.Equal(t, "hola, como estas?", act.Message)
}
