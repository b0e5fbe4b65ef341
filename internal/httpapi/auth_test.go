package httpapi

import (
	"testing"
	"time"

	"kasirpos/internal/domain"
	"kasirpos/internal/store/memory"
)

func TestLoginAndParseToken(t *testing.T) {
	auth := NewAuthManager("unit-test-secret-with-enough-length", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	auth := NewAuthManager("unit-test-secret-with-enough-length", time.Hour, memory.NewSeeded())

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected login failure")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatalf("expected login failure for unknown user")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("unit-test-secret-with-enough-length", time.Hour, memory.NewSeeded())

	if _, err := auth.ParseToken("not.a.token"); err == nil {
		t.Fatalf("expected parse failure")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	store := memory.NewSeeded()
	issuer := NewAuthManager("issuer-secret-with-enough-length-xx", time.Hour, store)
	verifier := NewAuthManager("another-secret-with-enough-length-x", time.Hour, store)

	resp, err := issuer.Login(domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth := NewAuthManager("unit-test-secret-with-enough-length", time.Hour, memory.NewSeeded())

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "ab", Password: "secret-1"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "dewi1", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "cashier", Password: "secret-1"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	user, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "Dewi1", Password: "secret-1"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if user.Username != "dewi1" || user.Role != "cashier" || !user.Active {
		t.Fatalf("unexpected cashier: %+v", user)
	}

	found := false
	for _, c := range auth.ListCashiers() {
		if c.Username == "dewi1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("created cashier missing from listing")
	}
}
