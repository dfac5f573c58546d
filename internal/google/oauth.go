package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// Scopes are the Google OAuth scopes requested at link time: read-only
// calendar access plus the identity scopes needed to show which account
// was connected.
var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// Config holds the OAuth client settings. The endpoint URLs are
// overridable for tests; when empty, Google's production endpoints are
// used.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL         string
	TokenURL        string
	UserInfoBaseURL string
	RevokeURL       string
}

// Client talks to Google's OAuth and identity endpoints. It is immutable
// after construction and safe for concurrent use.
type Client struct {
	config Config
}

// NewClient creates a Client from an immutable config snapshot.
func NewClient(config Config) *Client {
	if config.RevokeURL == "" {
		config.RevokeURL = defaultRevokeURL
	}
	return &Client{config: config}
}

// oauth2Config builds the golang.org/x/oauth2 configuration.
func (c *Client) oauth2Config() *oauth2.Config {
	endpoint := googleoauth.Endpoint
	if c.config.AuthURL != "" {
		endpoint.AuthURL = c.config.AuthURL
	}
	if c.config.TokenURL != "" {
		endpoint.TokenURL = c.config.TokenURL
	}

	return &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		RedirectURL:  c.config.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       Scopes,
	}
}

// Scope returns the space-delimited grant string recorded with each
// credential for audit purposes.
func (c *Client) Scope() string {
	return strings.Join(Scopes, " ")
}

// AuthCodeURL returns the consent-screen URL for the given state token.
// Offline access plus forced consent makes Google reliably issue a
// refresh token even when the user linked before.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth2Config().AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return token, nil
}

// Refresh trades a refresh token for a fresh access token. Google may or
// may not rotate the refresh token; when it does, the returned token
// carries the new one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ts := c.oauth2Config().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return token, nil
}

// UserEmail fetches the email of the Google account the access token
// belongs to.
func (c *Client) UserEmail(ctx context.Context, accessToken string) (string, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}
	if c.config.UserInfoBaseURL != "" {
		opts = append(opts, option.WithEndpoint(c.config.UserInfoBaseURL))
	}

	svc, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch user info: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("empty email in user info response")
	}

	return info.Email, nil
}

// Revoke invalidates the access token with Google. Callers treat failures
// as best-effort; the local credential is removed regardless.
func (c *Client) Revoke(ctx context.Context, accessToken string) error {
	data := url.Values{"token": {accessToken}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke failed with status %d", resp.StatusCode)
	}
	return nil
}

// IsInvalidGrant reports whether err means the refresh token (or code)
// itself was rejected by the provider, as opposed to a transient failure.
// Such errors are not retryable; the stored credential is useless.
func IsInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode == "invalid_grant" {
		return true
	}
	// Some deployments omit the structured error body; a definitive 4xx
	// from the token endpoint still means the grant is dead.
	return re.Response != nil &&
		(re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) &&
		re.ErrorCode == ""
}
