package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridz/shipdesk-whatsapp/internal/profile"
	"github.com/hybridz/shipdesk-whatsapp/internal/rate"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "shipdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationReuseWithinWindow(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	first, err := s.ConversationID("573001234567")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(first, "user", "hola", "text"))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	again, err := s.ConversationID("573001234567")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	s.now = func() time.Time { return base.Add(30 * time.Hour) }
	later, err := s.ConversationID("573001234567")
	require.NoError(t, err)
	assert.NotEqual(t, first, later)
}

func TestHistoryOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	id, err := s.ConversationID("573001234567")
	require.NoError(t, err)

	for _, msg := range []string{"one", "two", "three", "four"} {
		require.NoError(t, s.AppendMessage(id, "user", msg, "text"))
		require.NoError(t, s.AppendMessage(id, "model", "re: "+msg, "text"))
	}

	history, err := s.History(id, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "re: three", history[0].Content)
	assert.Equal(t, "four", history[1].Content)
	assert.Equal(t, "re: four", history[2].Content)
}

func TestSaveQuoteAndStats(t *testing.T) {
	s := newTestStore(t)
	id, err := s.ConversationID("573001234567")
	require.NoError(t, err)

	req := rate.QuoteRequest{DestinationCountry: "US", WeightKg: 25}
	res := rate.Result{Success: true, QuoteType: rate.TypeFixed, Amount: 133.00}
	require.NoError(t, s.SaveQuote(id, "573001234567", req, res))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Conversations)
	assert.Equal(t, 1, st.Quotations)
}

func TestUserMirrorRoundTrip(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetUser("573001234567")
	require.NoError(t, err)
	assert.Nil(t, got)

	u := &profile.Context{
		Phone: "+57 300 1234567", Company: "Acme", Name: "Ana Gomez",
		Nickname: "Ana", Role: profile.RoleEmployee, Row: 2, Blocked: false,
	}
	require.NoError(t, s.SaveUser(u))

	got, err = s.GetUser("573001234567")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme", got.Company)
	assert.Equal(t, profile.RoleEmployee, got.Role)

	u.Nickname = "Anita"
	u.Blocked = true
	require.NoError(t, s.SaveUser(u))
	got, err = s.GetUser("573001234567")
	require.NoError(t, err)
	assert.Equal(t, "Anita", got.Nickname)
	assert.True(t, got.Blocked)

	require.NoError(t, s.DeleteUser("+57 300 1234567"))
	got, err = s.GetUser("573001234567")
	require.NoError(t, err)
	assert.Nil(t, got)
}
