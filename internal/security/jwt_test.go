package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseAccessToken(t *testing.T) {
	now := time.Now()
	token, err := IssueAccessToken("secret", "user-1", RoleServiceRole, time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseAccessToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID() != "user-1" || claims.Role != RoleServiceRole {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseAccessTokenRejectsWrongSecretAndExpired(t *testing.T) {
	token, err := IssueAccessToken("secret", "user-1", "", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, errParse := ParseAccessToken("other", token); errParse == nil {
		t.Fatalf("expected wrong secret to fail")
	}

	expired, err := IssueAccessToken("secret", "user-1", "", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, errParse := ParseAccessToken("secret", expired); errParse == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestParseAccessTokenRejectsNoneAlgorithm(t *testing.T) {
	claims := &AccessClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, errParse := ParseAccessToken("secret", token); errParse == nil {
		t.Fatalf("expected none algorithm to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	if token, ok := BearerToken("Bearer abc"); !ok || token != "abc" {
		t.Fatalf("expected abc, got %q ok=%v", token, ok)
	}
	if token, ok := BearerToken("bearer  xyz "); !ok || token != "xyz" {
		t.Fatalf("expected xyz, got %q ok=%v", token, ok)
	}
	if _, ok := BearerToken("Basic abc"); ok {
		t.Fatalf("expected basic auth to be ignored")
	}
	if _, ok := BearerToken("Bearer "); ok {
		t.Fatalf("expected empty bearer to be ignored")
	}
}
