package tools

import (
	"crypto/rand"
	"math/big"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString generates an opaque token. The webhook verify token acts as a
// shared secret with Meta, so the bytes come from crypto/rand.
func RandomString(length int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the platform is broken
			panic(err)
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}
