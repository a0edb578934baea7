package crypto

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// idLength is the encoded length of a 16 byte random id.
const idLength = 22

// GenerateID returns a random, URL safe whisper id. The id doubles as the
// capability needed to reveal a whisper, so it carries the full 122 random
// bits of a v4 UUID instead of anything sequential.
func GenerateID() string {
	u := uuid.New()
	return base64.RawURLEncoding.EncodeToString(u[:])
}

// ValidID reports whether s has the shape of an id produced by GenerateID.
func ValidID(s string) bool {
	if len(s) != idLength {
		return false
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(b) == 16
}
