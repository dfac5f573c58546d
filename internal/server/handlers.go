package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/CreateIntelligens/voicetextpro/internal/calendar"
	"github.com/CreateIntelligens/voicetextpro/internal/link"
	"github.com/CreateIntelligens/voicetextpro/internal/logging"
	"github.com/CreateIntelligens/voicetextpro/internal/tokens"
)

// headerUserID carries the platform user resolved by the gateway.
const headerUserID = "X-User-ID"

// defaultEventsWindow is the listing window when the caller gives none.
const defaultEventsWindow = 7 * 24 * time.Hour

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// userID extracts the gateway-resolved user, answering 401 when absent.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(headerUserID)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing user identity.")
		return "", false
	}
	return id, true
}

// handleAuth starts the link flow: GET /api/calendar/auth.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	authURL, err := s.orchestrator.BeginLink(userID)
	if err != nil {
		s.logger.Error("failed to start link flow", logging.UserID(userID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Could not start the link flow.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

// handleCallback completes the link flow on the provider redirect:
// GET /api/calendar/callback?state=...&code=...
//
// This endpoint is hit by the user's browser coming back from Google, so
// the user identity comes from the state token, not the gateway header.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		// The user denied consent or Google aborted the flow.
		writeError(w, http.StatusBadRequest, "consent_denied", "Authorization was not granted.")
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing state or code parameter.")
		return
	}

	result, err := s.orchestrator.CompleteLink(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, link.ErrInvalidState) {
			writeError(w, http.StatusBadRequest, "invalid_state", "The authorization request is invalid or has expired. Please start over.")
			return
		}
		s.logger.Error("link completion failed", logging.Err(err))
		writeError(w, http.StatusBadGateway, "link_failed", "Could not complete the link with the calendar provider.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"linked":               true,
		"externalAccountEmail": result.AccountEmail,
	})
}

// statusResponse adds the deployment-level configured flag to the
// per-user link status.
type statusResponse struct {
	Configured bool `json:"configured"`
	*link.Status
}

// handleStatus reports the link state: GET /api/calendar/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	status, err := s.orchestrator.LinkStatus(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to read link status", logging.UserID(userID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Could not read the link status.")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Configured: true, Status: status})
}

// handleStatusNotConfigured answers the status endpoint when the
// integration is disabled: a plain "not configured", never an error.
func handleStatusNotConfigured(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Configured: false, Status: &link.Status{Linked: false}})
}

// handleUnlink removes the link: DELETE /api/calendar/link.
func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	if err := s.orchestrator.Unlink(r.Context(), userID); err != nil {
		s.logger.Error("unlink failed", logging.UserID(userID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Could not unlink the calendar account.")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleEvents lists events in a window:
// GET /api/calendar/events?timeMin=...&timeMax=...&maxResults=...
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	now := time.Now()
	timeMin, err := timeParam(r, "timeMin", now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "timeMin must be RFC 3339.")
		return
	}
	timeMax, err := timeParam(r, "timeMax", timeMin.Add(defaultEventsWindow))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "timeMax must be RFC 3339.")
		return
	}
	if !timeMax.After(timeMin) {
		writeError(w, http.StatusBadRequest, "invalid_request", "timeMax must be after timeMin.")
		return
	}

	var maxResults int64
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		maxResults, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || maxResults < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "maxResults must be a positive integer.")
			return
		}
	}

	events, err := s.reader.ListEvents(r.Context(), userID, timeMin, timeMax, maxResults)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrLinkRequired):
			writeError(w, http.StatusUnauthorized, "link_required", "No linked calendar account. Please connect one first.")
		default:
			var fetchErr *calendar.FetchError
			if errors.As(err, &fetchErr) {
				s.logger.Warn("calendar provider error", logging.UserID(userID), logging.Err(err))
				writeError(w, http.StatusBadGateway, "provider_error", "The calendar provider could not be reached.")
				return
			}
			s.logger.Error("events listing failed", logging.UserID(userID), logging.Err(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "Could not list events.")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// notConfigured answers every calendar route when the OAuth client or
// encryption key is missing from the environment.
func notConfigured(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusServiceUnavailable, "not_configured", "Calendar integration is not configured on this deployment.")
}

func timeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}
