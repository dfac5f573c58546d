package oauthstate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidityWindow is how long an issued state token is accepted by Parse.
// The token is the sole CSRF binding of the authorization flow, so the
// window is kept short.
const ValidityWindow = 10 * time.Minute

// ErrInvalid is returned by Parse for malformed or expired tokens. Parse
// fails closed: any token it cannot fully reverse-decode is rejected.
var ErrInvalid = errors.New("invalid or expired state token")

// State is the payload carried through the provider redirect. It binds the
// authorization flow to the initiating user. The nonce exists for log
// correlation only; the token is time-bounded, not single-use.
type State struct {
	UserID   string    `json:"user_id"`
	Nonce    string    `json:"nonce"`
	IssuedAt time.Time `json:"issued_at"`
}

// Codec creates and validates state tokens. Tokens are self-contained
// (base64url-encoded JSON), so no server-side pending-authorization table
// is needed. They carry no secret and are not encrypted.
type Codec struct {
	// now is overridable for tests.
	now func() time.Time
}

// NewCodec creates a Codec using the wall clock.
func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

// NewCodecWithClock creates a Codec with an injected clock.
func NewCodecWithClock(now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{now: now}
}

// Create issues a state token for the given user.
func (c *Codec) Create(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	payload, err := json.Marshal(State{
		UserID:   userID,
		Nonce:    uuid.New().String(),
		IssuedAt: c.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// Parse reverses Create. It returns ErrInvalid for anything it did not
// issue the shape of: bad base64, bad JSON, a missing user id, or an
// issued-at older than ValidityWindow.
func (c *Codec) Parse(token string) (*State, error) {
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalid
	}

	var s State
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, ErrInvalid
	}
	if s.UserID == "" || s.IssuedAt.IsZero() {
		return nil, ErrInvalid
	}

	age := c.now().Sub(s.IssuedAt)
	if age < 0 || age > ValidityWindow {
		return nil, ErrInvalid
	}

	return &s, nil
}
