// Package license verifies AnswerVault license keys fully offline.
//
// Key format: base64url(JSON payload) + "." + base64url(RSA-SHA256 signature).
// The signature covers the exact bytes of the encoded payload segment. Only
// the public key is ever present on a deployed instance; signing happens in
// cmd/licensegen.
package license

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claims is the signed license payload.
type Claims struct {
	CustomerName string `json:"customer_name"`
	AllowedRepo  string `json:"allowed_repo"` // "owner/repo" or "*" for any
	IssuedAt     int64  `json:"issued_at"`
	Expiry       int64  `json:"expiry,omitempty"` // zero = never expires
}

// Result is the outcome of verifying a single key. Reason is diagnostic
// only; callers must treat every invalid result identically.
type Result struct {
	Valid  bool
	Claims Claims
	Reason string
}

// Status is the per-request mode consumed by the request gate: demo
// (restricted, read-only, size-limited) or licensed.
type Status struct {
	Demo         bool   `json:"demo"`
	CustomerName string `json:"customer_name,omitempty"`
	AllowedRepo  string `json:"allowed_repo,omitempty"`
	Expiry       int64  `json:"expiry,omitempty"`
	Error        string `json:"error,omitempty"`
}

func invalid(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// Verify checks a license key against the configured public key and the
// caller's active repository. Pure and replayable; no network calls.
func Verify(publicKeyPEM, key, currentRepo string) Result {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return invalid("no public key configured - running in demo mode")
	}
	if strings.TrimSpace(key) == "" {
		return invalid("no license key provided")
	}

	parts := strings.Split(strings.TrimSpace(key), ".")
	if len(parts) != 2 {
		return invalid("invalid license format (expected payload.signature)")
	}
	payloadSegment, signatureSegment := parts[0], parts[1]

	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadSegment)
	if err != nil {
		return invalid("failed to parse license: payload is not valid base64url")
	}
	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return invalid("failed to parse license: " + err.Error())
	}

	signature, err := base64.RawURLEncoding.DecodeString(signatureSegment)
	if err != nil {
		return invalid("invalid license signature")
	}
	publicKey, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return invalid("signature verification failed - check your public key format")
	}
	digest := sha256.Sum256([]byte(payloadSegment))
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], signature); err != nil {
		return invalid("invalid license signature")
	}

	if claims.Expiry != 0 && claims.Expiry < time.Now().Unix() {
		expired := time.Unix(claims.Expiry, 0).UTC().Format("2006-01-02")
		return invalid(fmt.Sprintf("license expired on %s", expired))
	}

	if currentRepo != "" && claims.AllowedRepo != "*" && claims.AllowedRepo != currentRepo {
		return invalid(fmt.Sprintf("license is for repo %q, not %q", claims.AllowedRepo, currentRepo))
	}

	return Result{Valid: true, Claims: claims}
}

// StatusFor resolves the gate mode for a request. A missing or invalid key
// degrades to demo mode; it is never an error.
func StatusFor(publicKeyPEM, key, currentRepo string) Status {
	if strings.TrimSpace(key) == "" {
		return Status{Demo: true, Error: "no LICENSE_KEY set"}
	}
	result := Verify(publicKeyPEM, key, currentRepo)
	if !result.Valid {
		return Status{Demo: true, Error: result.Reason}
	}
	return Status{
		Demo:         false,
		CustomerName: result.Claims.CustomerName,
		AllowedRepo:  result.Claims.AllowedRepo,
		Expiry:       result.Claims.Expiry,
	}
}

func parsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return publicKey, nil
}
