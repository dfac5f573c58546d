// Package server exposes the calendar integration over HTTP.
//
// The service sits behind an authenticating gateway that resolves the
// platform user and forwards it in the X-User-ID header; there is no
// session handling here. Prometheus metrics are served on a dedicated
// listener, isolated from application traffic.
package server
