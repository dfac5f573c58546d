package link

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreateIntelligens/voicetextpro/internal/crypto"
	"github.com/CreateIntelligens/voicetextpro/internal/google"
	"github.com/CreateIntelligens/voicetextpro/internal/oauthstate"
	"github.com/CreateIntelligens/voicetextpro/internal/store"
	"github.com/CreateIntelligens/voicetextpro/internal/tokens"
)

// fakeGoogle emulates the provider endpoints the link flow touches.
type fakeGoogle struct {
	srv *httptest.Server

	tokenCalls  int
	revokeCalls int
	revokedWith string
	revokeFails bool

	// omitRefreshToken simulates a provider response without a refresh
	// token (e.g. consent was not re-prompted).
	omitRefreshToken bool
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	f := &fakeGoogle{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/token"):
			f.tokenCalls++
			w.Header().Set("Content-Type", "application/json")
			if f.omitRefreshToken {
				fmt.Fprint(w, `{"access_token":"access-abc","token_type":"Bearer","expires_in":3600}`)
				return
			}
			fmt.Fprint(w, `{"access_token":"access-abc","refresh_token":"refresh-abc","token_type":"Bearer","expires_in":3600}`)

		case strings.HasSuffix(r.URL.Path, "/userinfo"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"email":"user@example.com","verified_email":true}`)

		case strings.HasSuffix(r.URL.Path, "/revoke"):
			f.revokeCalls++
			_ = r.ParseForm()
			f.revokedWith = r.FormValue("token")
			if f.revokeFails {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGoogle) client() *google.Client {
	return google.NewClient(google.Config{
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		RedirectURL:     "https://app.example.com/api/calendar/callback",
		AuthURL:         f.srv.URL + "/auth",
		TokenURL:        f.srv.URL + "/token",
		UserInfoBaseURL: f.srv.URL,
		RevokeURL:       f.srv.URL + "/revoke",
	})
}

func newTestOrchestrator(t *testing.T, g *fakeGoogle) (*Orchestrator, *tokens.Vault) {
	t.Helper()
	key, err := crypto.ParseKeyHex(strings.Repeat("cd", crypto.KeySize))
	require.NoError(t, err)
	cipher, err := crypto.NewTokenCipher(key)
	require.NoError(t, err)

	vault := tokens.NewVault(store.NewMemoryCredentialStore(), cipher)
	return NewOrchestrator(oauthstate.NewCodec(), g.client(), vault, nil, nil), vault
}

func TestBeginLink(t *testing.T) {
	g := newFakeGoogle(t)
	o, _ := newTestOrchestrator(t, g)

	authURL, err := o.BeginLink("42")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "force", q.Get("approval_prompt"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Contains(t, q.Get("scope"), "calendar.readonly")

	// The state must round-trip back to the initiating user.
	state, err := oauthstate.NewCodec().Parse(q.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "42", state.UserID)
}

func TestBeginLink_EmptyUser(t *testing.T) {
	g := newFakeGoogle(t)
	o, _ := newTestOrchestrator(t, g)

	_, err := o.BeginLink("")
	require.Error(t, err)
}

func TestLinkFlow_EndToEnd(t *testing.T) {
	g := newFakeGoogle(t)
	o, _ := newTestOrchestrator(t, g)
	ctx := context.Background()

	authURL, err := o.BeginLink("42")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	result, err := o.CompleteLink(ctx, state, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "42", result.UserID)
	assert.Equal(t, "user@example.com", result.AccountEmail)
	assert.Equal(t, 1, g.tokenCalls)

	status, err := o.LinkStatus(ctx, "42")
	require.NoError(t, err)
	assert.True(t, status.Linked)
	assert.Equal(t, "user@example.com", status.AccountEmail)
	assert.Contains(t, status.Scope, "calendar.readonly")
	require.NotNil(t, status.LinkedAt)
	assert.WithinDuration(t, time.Now(), *status.LinkedAt, time.Minute)
}

func TestCompleteLink_ReplacesExistingCredential(t *testing.T) {
	g := newFakeGoogle(t)
	o, vault := newTestOrchestrator(t, g)
	ctx := context.Background()

	require.NoError(t, vault.Save(ctx, tokens.PlainCredential{
		UserID:       "42",
		AccountEmail: "old@example.com",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	state, err := oauthstate.NewCodec().Create("42")
	require.NoError(t, err)

	_, err = o.CompleteLink(ctx, state, "auth-code")
	require.NoError(t, err)

	cred, err := vault.Get(ctx, "42")
	require.NoError(t, err)
	plain, err := vault.Open(cred)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", plain.AccountEmail)
	assert.Equal(t, "access-abc", plain.AccessToken)
	assert.Equal(t, "refresh-abc", plain.RefreshToken)
}

func TestCompleteLink_InvalidState(t *testing.T) {
	g := newFakeGoogle(t)
	o, vault := newTestOrchestrator(t, g)
	ctx := context.Background()

	_, err := o.CompleteLink(ctx, "not-a-state-token", "auth-code")
	assert.ErrorIs(t, err, ErrInvalidState)

	// An invalid state must have no side effects at all.
	assert.Equal(t, 0, g.tokenCalls)
	cred, err := vault.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCompleteLink_ExpiredState(t *testing.T) {
	g := newFakeGoogle(t)
	o, _ := newTestOrchestrator(t, g)

	past := func() time.Time { return time.Now().Add(-oauthstate.ValidityWindow - time.Minute) }
	state, err := oauthstate.NewCodecWithClock(past).Create("42")
	require.NoError(t, err)

	_, err = o.CompleteLink(context.Background(), state, "auth-code")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 0, g.tokenCalls)
}

func TestCompleteLink_NoRefreshToken(t *testing.T) {
	g := newFakeGoogle(t)
	g.omitRefreshToken = true
	o, vault := newTestOrchestrator(t, g)
	ctx := context.Background()

	state, err := oauthstate.NewCodec().Create("42")
	require.NoError(t, err)

	_, err = o.CompleteLink(ctx, state, "auth-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh token")

	cred, err := vault.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, cred, "a credential without a refresh token must not be stored")
}

func TestUnlink(t *testing.T) {
	g := newFakeGoogle(t)
	o, vault := newTestOrchestrator(t, g)
	ctx := context.Background()

	require.NoError(t, vault.Save(ctx, tokens.PlainCredential{
		UserID:       "42",
		AccountEmail: "user@example.com",
		AccessToken:  "access-abc",
		RefreshToken: "refresh-abc",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	require.NoError(t, o.Unlink(ctx, "42"))

	assert.Equal(t, 1, g.revokeCalls)
	assert.Equal(t, "access-abc", g.revokedWith)

	cred, err := vault.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, cred)

	status, err := o.LinkStatus(ctx, "42")
	require.NoError(t, err)
	assert.False(t, status.Linked)
	assert.Empty(t, status.AccountEmail)
}

func TestUnlink_RevocationFailureStillDeletes(t *testing.T) {
	g := newFakeGoogle(t)
	g.revokeFails = true
	o, vault := newTestOrchestrator(t, g)
	ctx := context.Background()

	require.NoError(t, vault.Save(ctx, tokens.PlainCredential{
		UserID:       "42",
		AccessToken:  "access-abc",
		RefreshToken: "refresh-abc",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	require.NoError(t, o.Unlink(ctx, "42"))

	cred, err := vault.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, cred, "local deletion must not depend on the provider")
}

func TestUnlink_NotLinkedIsNoop(t *testing.T) {
	g := newFakeGoogle(t)
	o, _ := newTestOrchestrator(t, g)

	require.NoError(t, o.Unlink(context.Background(), "42"))
	assert.Equal(t, 0, g.revokeCalls)
}

func TestLinkStatus_NeverDecrypts(t *testing.T) {
	g := newFakeGoogle(t)
	ctx := context.Background()

	key, err := crypto.ParseKeyHex(strings.Repeat("cd", crypto.KeySize))
	require.NoError(t, err)
	cipher, err := crypto.NewTokenCipher(key)
	require.NoError(t, err)

	ms := store.NewMemoryCredentialStore()
	vault := tokens.NewVault(ms, cipher)
	o := NewOrchestrator(oauthstate.NewCodec(), g.client(), vault, nil, nil)

	require.NoError(t, vault.Save(ctx, tokens.PlainCredential{
		UserID:       "42",
		AccountEmail: "user@example.com",
		AccessToken:  "access-abc",
		RefreshToken: "refresh-abc",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	// Corrupt the ciphertexts; status must still work because it only
	// reads the non-sensitive columns.
	cred, err := ms.Get(ctx, "42")
	require.NoError(t, err)
	cred.EncryptedAccessToken[0] ^= 0xFF
	cred.EncryptedRefreshToken[0] ^= 0xFF
	require.NoError(t, ms.Upsert(ctx, cred))

	status, err := o.LinkStatus(ctx, "42")
	require.NoError(t, err)
	assert.True(t, status.Linked)
	assert.Equal(t, "user@example.com", status.AccountEmail)
}
