// Package session holds browser sessions for the AnswerVault UI. The cookie
// carries only a signed opaque token; the GitHub access token and everything
// else session-scoped lives server-side in Redis, keyed by the token's hash.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenClaims is the payload of the signed session token.
type TokenClaims struct {
	Username string `json:"username"`
	JTI      string `json:"jti"`
	Exp      int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpiredToken = errors.New("expired session token")
)

func IssueToken(secret []byte, claims TokenClaims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + sign(secret, payload), nil
}

func ParseToken(secret []byte, token string) (TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return TokenClaims{}, ErrInvalidToken
	}
	payload, signature := parts[0], parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return TokenClaims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return TokenClaims{}, ErrInvalidToken
	}
	var claims TokenClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return TokenClaims{}, ErrInvalidToken
	}
	if claims.Username == "" || claims.JTI == "" || claims.Exp == 0 {
		return TokenClaims{}, ErrInvalidToken
	}
	if time.Now().Unix() >= claims.Exp {
		return TokenClaims{}, ErrExpiredToken
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}

// HashToken derives the Redis key material for a token. The raw token never
// touches Redis.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
