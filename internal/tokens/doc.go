// Package tokens owns the credential lifecycle between storage and use:
// sealing tokens at rest (Vault) and handing out usable access tokens with
// transparent, per-user single-flight refresh (Provider).
//
// Plaintext tokens exist only inside this package and in the Google client
// calls it makes; nothing outside ever sees a decrypted refresh token.
package tokens
