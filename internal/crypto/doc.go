// Package crypto provides authenticated encryption for OAuth credentials
// stored at rest.
//
// Tokens are sealed with AES-256-GCM under a process-wide key supplied at
// startup. Decryption is strict: any tag verification failure surfaces as
// ErrIntegrity so a tampered or mis-keyed secret is never used.
package crypto
