package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrSecretTooShort = errors.New("hash: hmac secret must be at least 32 bytes")

// HMACSHA256 digests the literal input, so "042613" and "42613" differ.
// Digests are lowercase hex.
type HMACSHA256 struct {
	key []byte
}

func NewHMACSHA256(key []byte) (*HMACSHA256, error) {
	if len(key) < sha256.Size {
		return nil, ErrSecretTooShort
	}
	return &HMACSHA256{key: append([]byte(nil), key...)}, nil
}

func (h *HMACSHA256) Hash(str string) ([]byte, error) {
	return hex.AppendEncode(nil, h.sum(str)), nil
}

// Verify decodes hashed and compares MACs in constant time. Anything that is
// not a full-length hex digest fails.
func (h *HMACSHA256) Verify(hashed, str string) bool {
	want, err := hex.DecodeString(hashed)
	if err != nil || len(want) != sha256.Size {
		return false
	}
	return hmac.Equal(want, h.sum(str))
}

func (h *HMACSHA256) sum(str string) []byte {
	m := hmac.New(sha256.New, h.key)
	m.Write([]byte(str))
	return m.Sum(nil)
}
