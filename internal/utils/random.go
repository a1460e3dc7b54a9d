package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Reference codes avoid ambiguous characters (0/O, 1/I/L).
const referenceCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateReferenceCode produces a human-readable booking reference like
// "RH-7KQ2M9XT". A unique index on the column catches the rare collision.
func GenerateReferenceCode() string {
	return fmt.Sprintf("RH-%s", generateRandom(8, referenceCharset))
}

// GenerateIdempotencyReference returns a fresh caller-side idempotency key
// for a provider transaction.
func GenerateIdempotencyReference() string {
	return uuid.New().String()
}

func generateRandom(length int, charset string) string {
	result := make([]byte, length)
	charsetLength := big.NewInt(int64(len(charset)))

	for i := range result {
		num, _ := rand.Int(rand.Reader, charsetLength)
		result[i] = charset[num.Int64()]
	}

	return string(result)
}
