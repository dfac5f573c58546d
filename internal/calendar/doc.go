// Package calendar reads events from a linked Google Calendar account and
// normalizes them into a provider-neutral shape.
package calendar
