// Package google wraps the Google OAuth2 and identity endpoints consumed
// by the calendar integration: authorization-code exchange, refresh-token
// exchange, userinfo lookup, and best-effort token revocation.
//
// Endpoint URLs are injectable so tests can run the full flow against
// httptest servers.
package google
