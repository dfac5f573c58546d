// Package oauthstate implements the tamper-evident, short-lived state
// token that binds an OAuth authorization flow to the user who started it.
package oauthstate
