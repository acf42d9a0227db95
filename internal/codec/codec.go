// Package codec maps credential fields to the plaintext that gets sealed.
//
// The plaintext is a two-key JSON object, {"u": username, "p": secret},
// with keys always in that order. There is no version field.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrParse = errors.New("malformed record payload")

// Payload is the sealed part of a credential record
type Payload struct {
	Username string `json:"u"`
	Secret   string `json:"p"`
}

// wirePayload uses pointers so a missing key can be told apart from "".
type wirePayload struct {
	Username *string `json:"u"`
	Secret   *string `json:"p"`
}

// Serialize encodes username and secret for sealing
func Serialize(username, secret string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Payload{Username: username, Secret: secret}); err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	// Encoder appends a newline.
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Deserialize decodes an opened payload. Anything that is not a JSON object
// carrying both keys as strings is ErrParse.
func Deserialize(plaintext string) (Payload, error) {
	var wire wirePayload
	if err := json.Unmarshal([]byte(plaintext), &wire); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if wire.Username == nil || wire.Secret == nil {
		return Payload{}, fmt.Errorf("%w: missing field", ErrParse)
	}
	return Payload{Username: *wire.Username, Secret: *wire.Secret}, nil
}
