package notes

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

const shareTokenBytes = 32

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// TokenSource issues opaque share-link tokens.
type TokenSource interface {
	NewToken() (string, error)
}

type randomTokenSource struct{}

// NewRandomTokenSource returns 256-bit hex tokens read from crypto/rand.
func NewRandomTokenSource() TokenSource {
	return randomTokenSource{}
}

func (randomTokenSource) NewToken() (string, error) {
	buffer := make([]byte, shareTokenBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}
