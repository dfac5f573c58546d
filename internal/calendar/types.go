package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// Event is a normalized calendar event. Fields the provider omitted stay
// at their zero value and marshal away via omitempty.
type Event struct {
	ID           string     `json:"id"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Location     string     `json:"location,omitempty"`
	Start        EventTime  `json:"start"`
	End          EventTime  `json:"end"`
	Organizer    string     `json:"organizer,omitempty"`
	Attendees    []Attendee `json:"attendees,omitempty"`
	Status       string     `json:"status,omitempty"`
	ExternalLink string     `json:"externalLink,omitempty"`
}

// EventTime is either a timed instant (DateTime set) or an all-day date
// (Date set, "2006-01-02"). Exactly one of the two is populated.
type EventTime struct {
	DateTime *time.Time `json:"dateTime,omitempty"`
	Date     string     `json:"date,omitempty"`
	TimeZone string     `json:"timeZone,omitempty"`
}

// Attendee is a normalized event attendee.
type Attendee struct {
	Email          string `json:"email,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"` // "needsAction", "declined", "tentative", "accepted"
	Optional       bool   `json:"optional,omitempty"`
	Organizer      bool   `json:"organizer,omitempty"`
}

// toEvent converts a Google Calendar event to the normalized form.
func toEvent(event *calendar.Event) Event {
	out := Event{
		ID:           event.Id,
		Title:        event.Summary,
		Description:  event.Description,
		Location:     event.Location,
		Status:       event.Status,
		ExternalLink: event.HtmlLink,
	}

	out.Start = toEventTime(event.Start)
	out.End = toEventTime(event.End)

	if event.Organizer != nil {
		out.Organizer = event.Organizer.Email
	}

	for _, att := range event.Attendees {
		out.Attendees = append(out.Attendees, Attendee{
			Email:          att.Email,
			DisplayName:    att.DisplayName,
			ResponseStatus: att.ResponseStatus,
			Optional:       att.Optional,
			Organizer:      att.Organizer,
		})
	}

	return out
}

// toEventTime normalizes the provider's string timestamps. A DateTime that
// fails to parse is dropped rather than surfaced as a zero time.
func toEventTime(edt *calendar.EventDateTime) EventTime {
	if edt == nil {
		return EventTime{}
	}

	et := EventTime{TimeZone: edt.TimeZone}
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			et.DateTime = &t
		}
	} else if edt.Date != "" {
		et.Date = edt.Date
	}
	return et
}
