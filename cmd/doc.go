// Package cmd implements the command line interface of the
// voicetextpro-calendar service: serve, migrate, and version.
package cmd
