package license

import (
	"strings"
	"testing"
	"time"
)

func testKeyPair(t *testing.T) (string, string) {
	t.Helper()
	privateKey, publicKey, err := GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	return privateKey, publicKey
}

func signKey(t *testing.T, privateKey string, claims Claims) string {
	t.Helper()
	key, err := Sign(privateKey, claims)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return key
}

func TestVerifyValidKey(t *testing.T) {
	privateKey, publicKey := testKeyPair(t)
	key := signKey(t, privateKey, Claims{
		CustomerName: "Acme Corp",
		AllowedRepo:  "acme/compliance",
		IssuedAt:     time.Now().Unix(),
	})

	result := Verify(publicKey, key, "acme/compliance")
	if !result.Valid {
		t.Fatalf("Verify() invalid: %s", result.Reason)
	}
	if result.Claims.CustomerName != "Acme Corp" {
		t.Fatalf("unexpected claims: %+v", result.Claims)
	}
}

func TestVerifyWildcardRepoMatchesAnyScope(t *testing.T) {
	privateKey, publicKey := testKeyPair(t)
	key := signKey(t, privateKey, Claims{
		CustomerName: "Acme Corp",
		AllowedRepo:  "*",
		IssuedAt:     time.Now().Unix(),
	})

	for _, repo := range []string{"", "acme/compliance", "other/repo"} {
		if result := Verify(publicKey, key, repo); !result.Valid {
			t.Fatalf("Verify(repo=%q) invalid: %s", repo, result.Reason)
		}
	}
}

func TestVerifyRejectsScopeMismatch(t *testing.T) {
	privateKey, publicKey := testKeyPair(t)
	key := signKey(t, privateKey, Claims{
		CustomerName: "Acme Corp",
		AllowedRepo:  "acme/compliance",
		IssuedAt:     time.Now().Unix(),
	})

	result := Verify(publicKey, key, "other/repo")
	if result.Valid {
		t.Fatal("expected scope mismatch to fail verification")
	}
	if !strings.Contains(result.Reason, "acme/compliance") {
		t.Fatalf("reason should name the licensed repo, got %q", result.Reason)
	}
}

func TestVerifyRejectsExpiredRegardlessOfSignature(t *testing.T) {
	privateKey, publicKey := testKeyPair(t)
	key := signKey(t, privateKey, Claims{
		CustomerName: "Acme Corp",
		AllowedRepo:  "*",
		IssuedAt:     time.Now().Add(-48 * time.Hour).Unix(),
		Expiry:       time.Now().Add(-time.Hour).Unix(),
	})

	result := Verify(publicKey, key, "acme/compliance")
	if result.Valid {
		t.Fatal("expected expired key to fail verification")
	}
	if !strings.Contains(result.Reason, "expired") {
		t.Fatalf("expected expiry reason, got %q", result.Reason)
	}
}

func TestVerifyRejectsTamperedSegments(t *testing.T) {
	privateKey, publicKey := testKeyPair(t)
	key := signKey(t, privateKey, Claims{
		CustomerName: "Acme Corp",
		AllowedRepo:  "*",
		IssuedAt:     time.Now().Unix(),
	})

	parts := strings.SplitN(key, ".", 2)
	flip := func(s string) string {
		b := []byte(s)
		if b[0] == 'A' {
			b[0] = 'B'
		} else {
			b[0] = 'A'
		}
		return string(b)
	}

	if result := Verify(publicKey, flip(parts[0])+"."+parts[1], ""); result.Valid {
		t.Fatal("tampered payload segment must fail verification")
	}
	if result := Verify(publicKey, parts[0]+"."+flip(parts[1]), ""); result.Valid {
		t.Fatal("tampered signature segment must fail verification")
	}
}

func TestVerifyRejectsMalformedKeys(t *testing.T) {
	_, publicKey := testKeyPair(t)

	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"one segment", "justonesegment"},
		{"three segments", "a.b.c"},
		{"garbage payload", "!!!.c2ln"},
	}
	for _, tc := range cases {
		if result := Verify(publicKey, tc.key, ""); result.Valid {
			t.Fatalf("%s: expected verification to fail", tc.name)
		}
	}
}

func TestVerifyWithoutPublicKeyDegradesToDemo(t *testing.T) {
	result := Verify("", "whatever.key", "")
	if result.Valid {
		t.Fatal("expected failure without a public key")
	}

	status := StatusFor("", "whatever.key", "")
	if !status.Demo {
		t.Fatal("expected demo mode without a public key")
	}
}

func TestStatusFor(t *testing.T) {
	privateKey, publicKey := testKeyPair(t)
	key := signKey(t, privateKey, Claims{
		CustomerName: "Acme Corp",
		AllowedRepo:  "*",
		IssuedAt:     time.Now().Unix(),
		Expiry:       time.Now().Add(24 * time.Hour).Unix(),
	})

	status := StatusFor(publicKey, key, "acme/compliance")
	if status.Demo {
		t.Fatalf("expected licensed status, got demo: %s", status.Error)
	}
	if status.CustomerName != "Acme Corp" || status.AllowedRepo != "*" {
		t.Fatalf("unexpected status: %+v", status)
	}

	if status := StatusFor(publicKey, "", ""); !status.Demo {
		t.Fatal("missing key should yield demo status")
	}
}
