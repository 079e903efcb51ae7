package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CredentialBytes is the entropy of a one-time administrator credential.
const CredentialBytes = 18

// GenerateBase64Secret returns n bytes from crypto/rand encoded as URL-safe base64.
func GenerateBase64Secret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// OneTimeCredential is a freshly generated password and its stored form.
// Plaintext only lives long enough to be mailed to the owner.
type OneTimeCredential struct {
	Plaintext string
	Hash      string
}

func NewOneTimeCredential() (*OneTimeCredential, error) {
	plain, err := GenerateBase64Secret(CredentialBytes)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(plain)
	if err != nil {
		return nil, err
	}

	return &OneTimeCredential{Plaintext: plain, Hash: hash}, nil
}

// HashPassword hashes with bcrypt, which salts every hash independently.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
