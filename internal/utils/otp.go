package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// OTPLength is the number of digits in a verification code.
const OTPLength = 6

// OTPGenerator produces one-time verification codes.
type OTPGenerator interface {
	Generate() (string, error)
}

// NumericOTP generates zero-padded decimal codes of Digits length.
type NumericOTP struct {
	Digits int
}

func (g NumericOTP) Generate() (string, error) {
	return GenerateNumericOTP(g.Digits)
}

func GenerateNumericOTP(n int) (string, error) {
	if n <= 0 {
		n = OTPLength
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	num, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	format := fmt.Sprintf("%%0%dd", n)
	return fmt.Sprintf(format, num.Int64()), nil
}

// NewRandomToken returns nBytes of randomness hex-encoded, used for
// confirmation links.
func NewRandomToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
