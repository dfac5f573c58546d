// Package logging provides slog attribute helpers shared across the
// service. Tokens and ciphertexts are never logged; account emails are
// logged only as SHA-256 prefixes for correlation.
package logging
