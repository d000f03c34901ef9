package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every API key. The 8 hex characters after it are stored
// in clear for lookup; the full key is only kept as a bcrypt hash.
const (
	KeyPrefix    = "fp_"
	lookupLength = 8
)

type contextKey string

const APIKeyIDKey contextKey = "api_key_id"

// GenerateToken returns n random bytes hex-encoded.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewAPIKey returns a fresh key and its lookup prefix.
func NewAPIKey() (key, prefix string, err error) {
	raw, err := GenerateToken(32)
	if err != nil {
		return "", "", err
	}
	return KeyPrefix + raw, raw[:lookupLength], nil
}

// LookupPrefix extracts the stored prefix from a presented key.
func LookupPrefix(key string) (string, bool) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", false
	}
	raw := strings.TrimPrefix(key, KeyPrefix)
	if len(raw) < lookupLength {
		return "", false
	}
	return raw[:lookupLength], true
}

func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// BearerToken returns the token of an "Authorization: Bearer" header value.
func BearerToken(header string) (string, bool) {
	const scheme = "Bearer "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	return strings.TrimSpace(header[len(scheme):]), true
}

func APIKeyFromContext(ctx context.Context) string {
	v, _ := ctx.Value(APIKeyIDKey).(string)
	return v
}

func ContextWithAPIKey(ctx context.Context, keyID string) context.Context {
	return context.WithValue(ctx, APIKeyIDKey, keyID)
}
