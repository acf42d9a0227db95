// Package storage defines the sealed-record store contract and its local
// BBolt implementation.
//
// The local database holds one bucket, vaultx, with three slots:
//   - vaultx_master: the login fingerprint (argon2id digest string)
//   - vaultx_data: every sealed record as an ordered JSON array of
//     {"id", "t", "enc"} objects, read and written wholesale
//   - vaultx_modified: time of the last mutation
//
// Titles are stored in the clear so listing and search work without
// opening envelopes. Nothing in this package handles plaintext secrets.
//
// BBolt provides ACID transactions, file locking, and corruption detection;
// each Insert and Delete is a single read-modify-write transaction.
package storage
