package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CreateIntelligens/voicetextpro/internal/google"
	"github.com/CreateIntelligens/voicetextpro/internal/instrumentation"
	"github.com/CreateIntelligens/voicetextpro/internal/logging"
	"github.com/CreateIntelligens/voicetextpro/internal/oauthstate"
	"github.com/CreateIntelligens/voicetextpro/internal/tokens"
)

// ErrInvalidState is returned by CompleteLink when the round-tripped state
// token is malformed or expired. No credential is touched in that case.
var ErrInvalidState = oauthstate.ErrInvalid

// Result describes a successfully completed link.
type Result struct {
	UserID       string
	AccountEmail string
}

// Status is the non-sensitive view of a user's link, readable without
// touching the cipher.
type Status struct {
	Linked       bool       `json:"linked"`
	AccountEmail string     `json:"externalAccountEmail,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	LinkedAt     *time.Time `json:"linkedAt,omitempty"`
}

// Orchestrator drives the account link lifecycle: starting the consent
// flow, completing it on the provider's redirect, unlinking, and status.
type Orchestrator struct {
	codec   *oauthstate.Codec
	oauth   *google.Client
	vault   *tokens.Vault
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewOrchestrator creates an Orchestrator. metrics may be nil.
func NewOrchestrator(codec *oauthstate.Codec, oauth *google.Client, vault *tokens.Vault, logger *slog.Logger, metrics *instrumentation.Metrics) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		codec:   codec,
		oauth:   oauth,
		vault:   vault,
		logger:  logging.WithComponent(logger, "link"),
		metrics: metrics,
	}
}

// BeginLink issues a state token bound to the user and returns the
// provider consent URL to redirect them to.
func (o *Orchestrator) BeginLink(userID string) (string, error) {
	state, err := o.codec.Create(userID)
	if err != nil {
		return "", err
	}

	o.logger.Info("link flow started",
		logging.Operation("begin_link"),
		logging.UserID(userID),
	)
	return o.oauth.AuthCodeURL(state), nil
}

// CompleteLink finishes the flow on the provider redirect: it validates
// the state token, exchanges the code, resolves the linked account's
// email, and stores the credential. Completing a link for an already
// linked user replaces the previous credential.
func (o *Orchestrator) CompleteLink(ctx context.Context, stateToken, code string) (*Result, error) {
	state, err := o.codec.Parse(stateToken)
	if err != nil {
		o.metrics.RecordLink(ctx, "invalid_state")
		o.logger.Warn("link callback with invalid state",
			logging.Operation("complete_link"),
			logging.Err(err),
		)
		return nil, ErrInvalidState
	}

	token, err := o.oauth.Exchange(ctx, code)
	if err != nil {
		o.metrics.RecordLink(ctx, "exchange_error")
		o.logger.Error("auth code exchange failed",
			logging.Operation("complete_link"),
			logging.UserID(state.UserID),
			logging.Err(err),
		)
		return nil, fmt.Errorf("authorization exchange failed: %w", err)
	}
	if token.RefreshToken == "" {
		// Without a refresh token the credential dies with the first
		// access token; refuse to store it.
		o.metrics.RecordLink(ctx, "exchange_error")
		return nil, errors.New("provider did not issue a refresh token")
	}

	email, err := o.oauth.UserEmail(ctx, token.AccessToken)
	if err != nil {
		o.metrics.RecordLink(ctx, "exchange_error")
		return nil, fmt.Errorf("failed to resolve linked account: %w", err)
	}

	if err := o.vault.Save(ctx, tokens.PlainCredential{
		UserID:       state.UserID,
		AccountEmail: email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scope:        o.oauth.Scope(),
		ExpiresAt:    token.Expiry,
	}); err != nil {
		o.metrics.RecordLink(ctx, "store_error")
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	o.metrics.RecordLink(ctx, "success")
	o.logger.Info("calendar account linked",
		logging.Operation("complete_link"),
		logging.UserID(state.UserID),
		logging.EmailHash(email),
	)
	return &Result{UserID: state.UserID, AccountEmail: email}, nil
}

// Unlink removes the user's credential. Revocation with the provider is
// best-effort; the local record is deleted even when revocation fails or
// the stored tokens can no longer be decrypted. Unlinking an unlinked
// user succeeds.
func (o *Orchestrator) Unlink(ctx context.Context, userID string) error {
	cred, err := o.vault.Get(ctx, userID)
	if err != nil {
		return err
	}
	if cred == nil {
		return nil
	}

	if plain, err := o.vault.Open(cred); err == nil {
		if err := o.oauth.Revoke(ctx, plain.AccessToken); err != nil {
			o.logger.Warn("token revocation failed, deleting locally anyway",
				logging.Operation("unlink"),
				logging.UserID(userID),
				logging.Err(err),
			)
		}
	} else {
		o.logger.Warn("credential undecryptable at unlink, skipping revocation",
			logging.Operation("unlink"),
			logging.UserID(userID),
			logging.Err(err),
		)
	}

	if err := o.vault.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	o.logger.Info("calendar account unlinked",
		logging.Operation("unlink"),
		logging.UserID(userID),
	)
	return nil
}

// LinkStatus reports whether the user has a linked account. It never
// decrypts anything.
func (o *Orchestrator) LinkStatus(ctx context.Context, userID string) (*Status, error) {
	cred, err := o.vault.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return &Status{Linked: false}, nil
	}

	linkedAt := cred.UpdatedAt
	return &Status{
		Linked:       true,
		AccountEmail: cred.AccountEmail,
		Scope:        cred.Scope,
		LinkedAt:     &linkedAt,
	}, nil
}
