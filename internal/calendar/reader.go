package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/CreateIntelligens/voicetextpro/internal/instrumentation"
	"github.com/CreateIntelligens/voicetextpro/internal/logging"
	"github.com/CreateIntelligens/voicetextpro/internal/tokens"
)

// DefaultMaxResults caps an events listing when the caller does not.
const DefaultMaxResults = 100

// FetchError wraps a calendar provider failure so handlers can map it to
// an upstream-error response without losing the provider status code.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("calendar provider request failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Reader lists events from a linked user's primary calendar. It asks the
// token provider for a credential on every call; credentials are never
// cached here, so a refresh or unlink takes effect immediately.
type Reader struct {
	provider *tokens.Provider
	logger   *slog.Logger
	metrics  *instrumentation.Metrics

	// endpoint overrides the Google Calendar API base URL in tests.
	endpoint string
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithEndpoint points the reader at an alternative API base URL.
func WithEndpoint(url string) ReaderOption {
	return func(r *Reader) { r.endpoint = url }
}

// NewReader creates a Reader. metrics may be nil.
func NewReader(provider *tokens.Provider, logger *slog.Logger, metrics *instrumentation.Metrics, opts ...ReaderOption) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reader{
		provider: provider,
		logger:   logging.WithComponent(logger, "calendar"),
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListEvents returns the user's events between timeMin and timeMax,
// expanded to single instances and ordered by start time.
//
// tokens.ErrLinkRequired passes through untouched so handlers can tell
// "user must re-link" apart from "provider is down".
func (r *Reader) ListEvents(ctx context.Context, userID string, timeMin, timeMax time.Time, maxResults int64) ([]Event, error) {
	if !timeMax.After(timeMin) {
		return nil, fmt.Errorf("invalid time window: timeMax must be after timeMin")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	cred, err := r.provider.Access(ctx, userID)
	if err != nil {
		return nil, err
	}

	svc, err := r.service(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := svc.Events.List("primary").
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		r.metrics.RecordCalendarAPICall(ctx, "events_list", "error", time.Since(start))
		r.logger.Warn("events listing failed",
			logging.Operation("events_list"),
			logging.UserID(userID),
			logging.Err(err),
		)
		return nil, wrapFetchError(err)
	}
	r.metrics.RecordCalendarAPICall(ctx, "events_list", "success", time.Since(start))

	events := make([]Event, 0, len(result.Items))
	for _, item := range result.Items {
		events = append(events, toEvent(item))
	}

	r.logger.Debug("events listed",
		logging.Operation("events_list"),
		logging.UserID(userID),
		slog.Int("count", len(events)),
	)
	return events, nil
}

// service builds a calendar service authenticated with the given token.
func (r *Reader) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}
	if r.endpoint != "" {
		opts = append(opts, option.WithEndpoint(r.endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// wrapFetchError preserves the provider's HTTP status when one exists.
func wrapFetchError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &FetchError{StatusCode: apiErr.Code, Err: err}
	}
	return &FetchError{Err: err}
}
