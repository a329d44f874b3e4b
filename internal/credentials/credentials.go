package credentials

import (
	"crypto/rand"
	"math/big"
)

// Ambiguous glyphs (0/O, 1/l/I) are left out so passwords read back cleanly
const passwordChars = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// TemporaryPasswordLength is the length of generated account passwords
const TemporaryPasswordLength = 14

// GenerateTemporaryPassword returns a random password for an account created
// by an admin without one. The user is expected to change it on first login.
func GenerateTemporaryPassword() (string, error) {
	password := make([]byte, TemporaryPasswordLength)
	for i := range password {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordChars))))
		if err != nil {
			return "", err
		}
		password[i] = passwordChars[num.Int64()]
	}
	return string(password), nil
}
