package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func TestGenerateAndParseToken(t *testing.T) {
	signed, err := GenerateToken("ops", testSecret, "graylogic", time.Minute, ScopeControl)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ParseToken(signed, testSecret, "graylogic")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops" {
		t.Errorf("Subject = %q, want ops", claims.Subject)
	}
	if !claims.HasScope(ScopeControl) || !claims.HasScope(ScopeRead) {
		t.Errorf("scopes = %v, want control implying read", claims.Scopes())
	}
	if claims.ID == "" {
		t.Error("token has no ID")
	}
}

func TestGenerateToken_Defaults(t *testing.T) {
	signed, err := GenerateToken("viewer", testSecret, "", 0)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := ParseToken(signed, testSecret, "")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.HasScope(ScopeControl) {
		t.Error("default token grants control")
	}
	if !claims.HasScope(ScopeRead) {
		t.Error("default token does not grant read")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", ttl, DefaultTTL)
	}

	if _, err := GenerateToken("viewer", "", "", 0); !errors.Is(err, ErrNoSecret) {
		t.Errorf("GenerateToken() without secret error = %v, want ErrNoSecret", err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateToken("ops", testSecret, "graylogic", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	expired, err := GenerateToken("ops", testSecret, "graylogic", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	noSubject, err := GenerateToken("", testSecret, "graylogic", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
		issuer string
	}{
		{"wrong secret", valid, "another-secret-key-at-least-32-chars", "graylogic"},
		{"wrong issuer", valid, testSecret, "someone-else"},
		{"expired", expired, testSecret, "graylogic"},
		{"missing subject", noSubject, testSecret, "graylogic"},
		{"unsigned", none, testSecret, ""},
		{"garbage", "not.a.token", testSecret, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret, tt.issuer); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
