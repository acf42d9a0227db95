// Package core is the vault session: the Locked, Unlocking and Unlocked
// states, the gate that proves an unlock is legitimate, and the in-memory
// working set of opened records.
//
// The key is derived from the passphrase on every seal and open and never
// leaves the session. A gate only decides whether unlocking may proceed:
//   - LocalGate compares against an argon2id fingerprint in the vault file
//   - RemoteGate signs in to the hosted identity provider
//
// A hosted sign-in does not prove the passphrase matches the one the
// records were sealed with. Records that fail to open are dropped from the
// working set and counted in the LoadReport.
package core
