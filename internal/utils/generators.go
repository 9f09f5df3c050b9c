package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// GenerateCheckinCode produces a numeric code of the given length using
// crypto/rand. Codes are short-lived and only their hash is persisted, so
// digits keep them typeable from a studio wall screen.
func GenerateCheckinCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteString(n.String())
	}
	return b.String(), nil
}

// HashCheckinCode returns the hex sha256 of a plaintext check-in code.
// This is the only form the code is ever stored in.
func HashCheckinCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
