package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generate returns a random numeric code of the requested length using
// crypto/rand. Leading zeros are allowed.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate otp digit: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
