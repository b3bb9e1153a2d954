// Package jwt issues the HS256 tokens the Engine API expects on every
// authenticated request.
package jwt

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v4"
)

// SecretLength is the size of an Engine API shared secret in bytes.
const SecretLength = 32

// Secret is a decoded Engine API shared secret.
type Secret []byte

// ParseHexKey decodes a hex secret, with or without 0x prefix and surrounding
// whitespace.
func ParseHexKey(content string) (Secret, error) {
	key := strings.TrimPrefix(strings.TrimSpace(content), "0x")
	secret, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hex secret: %w", err)
	}
	if len(secret) != SecretLength {
		return nil, fmt.Errorf("invalid secret length: have %d bytes, want %d", len(secret), SecretLength)
	}
	return secret, nil
}

// LoadSecret reads a hex secret file such as geth's jwt.hex.
func LoadSecret(path string) (Secret, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseHexKey(string(content))
}

// GenerateToken signs a token issued at now. Execution clients accept tokens
// whose iat is within a few seconds of their clock.
func GenerateToken(secret Secret, now time.Time) (string, error) {
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.RegisteredClaims{
		IssuedAt: gojwt.NewNumericDate(now),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
