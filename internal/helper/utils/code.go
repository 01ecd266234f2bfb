package utils

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

// GenerateCode returns a 6-digit one-time code, uniform over
// [100000, 999999], from the crypto/rand source. Used for both email
// verification codes and password reset codes.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", errors.New("failed to generate code")
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
