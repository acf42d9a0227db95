// Package devserver is a local stand-in for the hosted identity and
// record API used by the remote backend. It speaks the subset of the
// GoTrue (/auth/v1) and PostgREST (/rest/v1/vault_items) dialects the
// client needs, backed by SQLite.
//
// It is meant for offline development and integration tests, not for
// production use: there are no refresh tokens and email confirmation
// tokens are written to the log instead of being mailed.
package devserver
