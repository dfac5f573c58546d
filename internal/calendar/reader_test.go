package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/CreateIntelligens/voicetextpro/internal/crypto"
	"github.com/CreateIntelligens/voicetextpro/internal/store"
	"github.com/CreateIntelligens/voicetextpro/internal/tokens"
)

type staticRefresher struct{}

func (staticRefresher) Refresh(context.Context, string) (*oauth2.Token, error) {
	return nil, errors.New("refresh not expected")
}

func newLinkedProvider(t *testing.T, userID string) *tokens.Provider {
	t.Helper()
	key, err := crypto.ParseKeyHex(strings.Repeat("ab", crypto.KeySize))
	require.NoError(t, err)
	cipher, err := crypto.NewTokenCipher(key)
	require.NoError(t, err)

	vault := tokens.NewVault(store.NewMemoryCredentialStore(), cipher)
	require.NoError(t, vault.Save(context.Background(), tokens.PlainCredential{
		UserID:       userID,
		AccountEmail: "user@example.com",
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))
	return tokens.NewProvider(vault, staticRefresher{}, nil, nil)
}

func TestListEvents(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"items": [
				{
					"id": "evt1",
					"summary": "Weekly sync",
					"status": "confirmed",
					"htmlLink": "https://calendar.google.com/event?eid=evt1",
					"organizer": {"email": "organizer@example.com"},
					"start": {"dateTime": "2026-08-24T10:00:00Z", "timeZone": "UTC"},
					"end": {"dateTime": "2026-08-24T11:00:00Z", "timeZone": "UTC"},
					"attendees": [
						{"email": "a@example.com", "responseStatus": "accepted"},
						{"email": "b@example.com", "responseStatus": "declined", "optional": true}
					]
				},
				{
					"id": "evt2",
					"summary": "Company holiday",
					"start": {"date": "2026-08-25"},
					"end": {"date": "2026-08-26"}
				}
			]
		}`)
	}))
	defer srv.Close()

	reader := NewReader(newLinkedProvider(t, "42"), nil, nil, WithEndpoint(srv.URL))

	timeMin := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	timeMax := timeMin.Add(7 * 24 * time.Hour)
	events, err := reader.ListEvents(context.Background(), "42", timeMin, timeMax, 50)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(gotPath, "/calendars/primary/events"))
	assert.Equal(t, "Bearer access-token", gotAuth)
	assert.Equal(t, timeMin.Format(time.RFC3339), gotQuery["timeMin"])
	assert.Equal(t, timeMax.Format(time.RFC3339), gotQuery["timeMax"])
	assert.Equal(t, "true", gotQuery["singleEvents"])
	assert.Equal(t, "startTime", gotQuery["orderBy"])
	assert.Equal(t, "50", gotQuery["maxResults"])

	require.Len(t, events, 2)

	timed := events[0]
	assert.Equal(t, "evt1", timed.ID)
	assert.Equal(t, "Weekly sync", timed.Title)
	assert.Equal(t, "organizer@example.com", timed.Organizer)
	assert.Equal(t, "confirmed", timed.Status)
	require.NotNil(t, timed.Start.DateTime)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), timed.Start.DateTime.UTC())
	assert.Empty(t, timed.Start.Date)
	require.Len(t, timed.Attendees, 2)
	assert.Equal(t, "accepted", timed.Attendees[0].ResponseStatus)
	assert.True(t, timed.Attendees[1].Optional)

	allDay := events[1]
	assert.Nil(t, allDay.Start.DateTime)
	assert.Equal(t, "2026-08-25", allDay.Start.Date)
	assert.Equal(t, "2026-08-26", allDay.End.Date)
}

func TestListEvents_DefaultMaxResults(t *testing.T) {
	var gotMax string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMax = r.URL.Query().Get("maxResults")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer srv.Close()

	reader := NewReader(newLinkedProvider(t, "42"), nil, nil, WithEndpoint(srv.URL))

	events, err := reader.ListEvents(context.Background(), "42",
		time.Now(), time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, "100", gotMax)
}

func TestListEvents_InvalidWindow(t *testing.T) {
	reader := NewReader(newLinkedProvider(t, "42"), nil, nil)

	now := time.Now()
	_, err := reader.ListEvents(context.Background(), "42", now, now, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time window")
}

func TestListEvents_LinkRequiredPassthrough(t *testing.T) {
	reader := NewReader(newLinkedProvider(t, "42"), nil, nil)

	_, err := reader.ListEvents(context.Background(), "no-such-user",
		time.Now(), time.Now().Add(time.Hour), 10)
	assert.ErrorIs(t, err, tokens.ErrLinkRequired)
}

func TestListEvents_ProviderErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"code": 403, "message": "Rate Limit Exceeded"}}`)
	}))
	defer srv.Close()

	reader := NewReader(newLinkedProvider(t, "42"), nil, nil, WithEndpoint(srv.URL))

	_, err := reader.ListEvents(context.Background(), "42",
		time.Now(), time.Now().Add(time.Hour), 10)
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
}

func TestToEvent(t *testing.T) {
	src := &gcal.Event{
		Id:       "evt1",
		Summary:  "Standup",
		Location: "Room 4",
		Status:   "confirmed",
		Start:    &gcal.EventDateTime{DateTime: "2026-08-24T09:00:00+02:00", TimeZone: "Europe/Berlin"},
		End:      &gcal.EventDateTime{DateTime: "2026-08-24T09:15:00+02:00", TimeZone: "Europe/Berlin"},
		Organizer: &gcal.EventOrganizer{
			Email: "organizer@example.com",
		},
	}

	evt := toEvent(src)
	assert.Equal(t, "Standup", evt.Title)
	assert.Equal(t, "Room 4", evt.Location)
	assert.Equal(t, "organizer@example.com", evt.Organizer)
	require.NotNil(t, evt.Start.DateTime)
	assert.Equal(t, "Europe/Berlin", evt.Start.TimeZone)
}

func TestToEventTime(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, EventTime{}, toEventTime(nil))
	})

	t.Run("all-day", func(t *testing.T) {
		et := toEventTime(&gcal.EventDateTime{Date: "2026-08-25"})
		assert.Nil(t, et.DateTime)
		assert.Equal(t, "2026-08-25", et.Date)
	})

	t.Run("unparseable datetime dropped", func(t *testing.T) {
		et := toEventTime(&gcal.EventDateTime{DateTime: "not-a-time"})
		assert.Nil(t, et.DateTime)
		assert.Empty(t, et.Date)
	})
}
