package httpapi

import (
	"context"
	"testing"
	"time"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store/memory"
)

func TestLoginIssuesParsableToken(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager(testSecret, time.Hour, repo)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "nena", Password: "owner123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.OrganizationID != "org-demo" || resp.Role != domain.RoleOwner {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.ExpiresAt); err != nil {
		t.Fatalf("expires_at is not RFC3339: %q", resp.ExpiresAt)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.UserID != "user-demo-owner" || actor.OrganizationID != "org-demo" || actor.Role != domain.RoleOwner {
		t.Fatalf("unexpected actor from token: %+v", actor)
	}
}

func TestLoginIsCaseInsensitiveOnUsername(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager(testSecret, time.Hour, repo)

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "NENA", Password: "owner123"}); err != nil {
		t.Fatalf("expected uppercase username to log in, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager(testSecret, time.Hour, repo)

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "nena", Password: "nope"}); err == nil {
		t.Fatal("expected wrong password to fail")
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "owner123"}); err == nil {
		t.Fatal("expected unknown user to fail")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	repo := memory.NewSeeded()
	issuer := NewAuthManager("issuer-secret-0123456789abcdef!!", time.Hour, repo)
	verifier := NewAuthManager("other-secret-0123456789abcdef!!!", time.Hour, repo)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "jun", Password: "staff123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour, memory.New())

	for _, token := range []string{"", "abc", "a.b.c"} {
		if _, err := auth.ParseToken(token); err == nil {
			t.Fatalf("expected parse failure for %q", token)
		}
	}
}
