// Package store persists encrypted calendar credentials, one record per
// user. The PostgreSQL implementation is used in production; an in-memory
// implementation backs tests and database-less development.
package store
