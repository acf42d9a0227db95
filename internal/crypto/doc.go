// Package crypto provides the sealing primitives for vaultx records.
//
// Envelopes are base64 text and self-describing. Two formats exist:
//   - pbkdf2-gcm: AES-256-GCM, key from PBKDF2-HMAC-SHA256 with a 32-byte
//     random salt; iteration count, salt and 12-byte nonce travel in the
//     envelope header, which is authenticated as additional data
//   - age-scrypt: an age v1 file encrypted to a scrypt passphrase recipient
//
// Open detects the format from the envelope. A wrong passphrase and a
// damaged envelope are reported identically as ErrAuthFailed.
//
// Fingerprints are argon2id digests under a fixed domain-separation salt.
// They are deterministic and never equal any record key.
//
// Memory safety:
//   - KeyMaterial keeps the passphrase in mlocked memory on Linux
//   - Call KeyMaterial.Destroy() when the session locks
//   - Use ClearBytes() to zero derived keys and decrypted buffers
package crypto
