package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/CreateIntelligens/voicetextpro/internal/crypto"
	"github.com/CreateIntelligens/voicetextpro/internal/google"
	"github.com/CreateIntelligens/voicetextpro/internal/instrumentation"
	"github.com/CreateIntelligens/voicetextpro/internal/logging"
)

// ErrLinkRequired means the user has no usable linked calendar account:
// no record, a corrupted record, or a refresh token the provider rejected.
// The only recovery is sending the user back through the link flow.
var ErrLinkRequired = errors.New("calendar link required")

// expiryLeeway refreshes slightly before the recorded expiry so a token
// returned to a caller cannot expire mid-request.
const expiryLeeway = 30 * time.Second

// Refresher exchanges a refresh token for a fresh access token.
// *google.Client implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Credential is a ready-to-use access credential handed to callers. It is
// valid at least until ExpiresAt minus the leeway it was checked against.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Provider hands out usable access tokens, transparently refreshing and
// re-encrypting expired ones. Refreshes are single-flight per user: with
// rotating refresh tokens, two concurrent refresh calls would let the
// provider invalidate the token one of them is still holding.
type Provider struct {
	vault     *Vault
	refresher Refresher
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProvider creates a Provider. metrics may be nil.
func NewProvider(vault *Vault, refresher Refresher, logger *slog.Logger, metrics *instrumentation.Metrics) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		vault:     vault,
		refresher: refresher,
		logger:    logging.WithComponent(logger, "tokens"),
		metrics:   metrics,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Access returns a usable access credential for the user, refreshing it
// first when the stored one has expired.
//
// Error contract: ErrLinkRequired when the user must re-link; any other
// error is transient and the stored record is left untouched so a later
// call can succeed without re-linking.
func (p *Provider) Access(ctx context.Context, userID string) (*Credential, error) {
	cred, err := p.vault.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrLinkRequired
	}

	plain, err := p.vault.Open(cred)
	if err != nil {
		return nil, p.quarantine(ctx, userID, err)
	}

	if p.fresh(plain.ExpiresAt) {
		return &Credential{AccessToken: plain.AccessToken, ExpiresAt: plain.ExpiresAt}, nil
	}

	return p.refresh(ctx, userID)
}

// fresh reports whether an expiry is far enough in the future to hand out.
func (p *Provider) fresh(expiresAt time.Time) bool {
	return expiresAt.After(p.now().Add(expiryLeeway))
}

// refresh serializes the refresh per user. Waiters re-read the store after
// acquiring the lock and reuse the first flight's result instead of
// issuing their own provider call.
func (p *Provider) refresh(ctx context.Context, userID string) (*Credential, error) {
	lock := p.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := p.vault.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		// The first flight hit a dead grant and deleted the record.
		return nil, ErrLinkRequired
	}

	plain, err := p.vault.Open(cred)
	if err != nil {
		return nil, p.quarantine(ctx, userID, err)
	}

	if p.fresh(plain.ExpiresAt) {
		// Another caller finished the refresh while we waited.
		return &Credential{AccessToken: plain.AccessToken, ExpiresAt: plain.ExpiresAt}, nil
	}

	token, err := p.refresher.Refresh(ctx, plain.RefreshToken)
	if err != nil {
		if google.IsInvalidGrant(err) {
			p.logger.Warn("refresh token rejected by provider, unlinking",
				logging.Operation("token_refresh"),
				logging.UserID(userID),
				logging.Err(err),
			)
			p.metrics.RecordTokenRefresh(ctx, "invalid_grant")
			if delErr := p.vault.Delete(ctx, userID); delErr != nil {
				p.logger.Error("failed to delete rejected credential",
					logging.UserID(userID), logging.Err(delErr))
			}
			return nil, ErrLinkRequired
		}

		// Transient: leave the record alone, let the caller retry.
		p.metrics.RecordTokenRefresh(ctx, "transient_error")
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	// Google only returns a refresh token when it rotated it; otherwise
	// re-wrap the old one so the record stays IV-consistent.
	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = plain.RefreshToken
	}

	if err := p.vault.Save(ctx, PlainCredential{
		UserID:       userID,
		AccountEmail: plain.AccountEmail,
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		Scope:        plain.Scope,
		ExpiresAt:    token.Expiry,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	p.metrics.RecordTokenRefresh(ctx, "success")
	p.logger.Info("access token refreshed",
		logging.Operation("token_refresh"),
		logging.UserID(userID),
		logging.Status(logging.StatusSuccess),
	)

	return &Credential{AccessToken: token.AccessToken, ExpiresAt: token.Expiry}, nil
}

// quarantine handles a decrypt failure: the record is corrupt or was
// written under a different key, so it is deleted rather than half-trusted.
func (p *Provider) quarantine(ctx context.Context, userID string, err error) error {
	if !errors.Is(err, crypto.ErrIntegrity) {
		return err
	}

	p.logger.Error("credential failed integrity check, deleting record",
		logging.Operation("credential_open"),
		logging.UserID(userID),
		logging.Err(err),
	)
	if delErr := p.vault.Delete(ctx, userID); delErr != nil {
		p.logger.Error("failed to delete corrupted credential",
			logging.UserID(userID), logging.Err(delErr))
	}
	return ErrLinkRequired
}

func (p *Provider) userLock(userID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[userID] = lock
	}
	return lock
}
