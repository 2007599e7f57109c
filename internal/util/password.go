package util

import (
	"crypto/rand"
	"math/big"
)

const (
	passwordLower  = "abcdefghijklmnopqrstuvwxyz"
	passwordUpper  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordDigits = "0123456789"
)

// GeneratePassword produces a random password guaranteed to contain at least
// one lowercase letter, one uppercase letter and one digit. Special characters
// are deliberately excluded: the credential provider rejects some of them.
func GeneratePassword(length int) string {
	if length < 3 {
		length = 3
	}

	chars := []byte{
		randomByte(passwordLower),
		randomByte(passwordUpper),
		randomByte(passwordDigits),
	}

	all := passwordLower + passwordUpper + passwordDigits
	for len(chars) < length {
		chars = append(chars, randomByte(all))
	}

	// Fisher-Yates so the mandatory classes are not always at the front.
	for i := len(chars) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars)
}

func randomByte(set string) byte {
	return set[randomIndex(len(set))]
}

func randomIndex(n int) int {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken;
		// nothing sensible to do but stop.
		panic(err)
	}
	return int(idx.Int64())
}
