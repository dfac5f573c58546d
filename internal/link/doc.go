// Package link orchestrates the calendar account link lifecycle against
// the OAuth provider: begin, complete, unlink, and status.
package link
