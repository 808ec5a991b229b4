package otp

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strconv"
)

// ErrInvalidDigits is returned for a code length outside 4..9.
var ErrInvalidDigits = errors.New("otp: digits must be between 4 and 9")

// Generator produces one-time codes.
type Generator interface {
	Generate() (string, error)
}

// Numeric draws codes uniformly from [10^(digits-1), 10^digits), so a code
// never starts with zero and always has exactly digits characters.
type Numeric struct {
	min    int64
	span   *big.Int
	reader io.Reader
}

// NewNumeric returns a Numeric generator backed by crypto/rand.
func NewNumeric(digits int) (*Numeric, error) {
	return newNumeric(digits, rand.Reader)
}

func newNumeric(digits int, reader io.Reader) (*Numeric, error) {
	if digits < 4 || digits > 9 {
		return nil, ErrInvalidDigits
	}

	minimum := int64(1)
	for range digits - 1 {
		minimum *= 10
	}

	return &Numeric{
		min:    minimum,
		span:   big.NewInt(minimum * 9),
		reader: reader,
	}, nil
}

// Generate returns the next code.
func (n *Numeric) Generate() (string, error) {
	v, err := rand.Int(n.reader, n.span)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(v.Int64()+n.min, 10), nil
}
