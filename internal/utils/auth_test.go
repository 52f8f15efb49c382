package utils

import (
	"testing"
	"time"
)

func TestPasswordHashing(t *testing.T) {
	password := "secret123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == password {
		t.Error("Hash should not match plaintext password")
	}
	if len(hash) == 0 {
		t.Error("Hash should not be empty")
	}

	if !CheckPasswordHash(password, hash) {
		t.Error("Password should match hash")
	}
	if CheckPasswordHash("wrongpassword", hash) {
		t.Error("Wrong password should not match hash")
	}
}

func TestTenantToken(t *testing.T) {
	secret := "test-secret-key-12345"
	tenantID := "0b6e4c1a-3f0e-4a55-9a55-3d3f0c9f1e2a"

	token, err := GenerateTenantToken(tenantID, secret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("Token should not be empty")
	}

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	got, ok := TenantFromClaims(claims)
	if !ok || got != tenantID {
		t.Errorf("Expected tenant %s, got %q", tenantID, got)
	}

	// Wrong key
	if _, err := ValidateToken(token, "wrong-key"); err == nil {
		t.Error("Validation should fail with wrong key")
	}
}

func TestExpiredTenantToken(t *testing.T) {
	token, err := GenerateTenantToken("tenant", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := ValidateToken(token, "secret"); err == nil {
		t.Error("Expired token should not validate")
	}
}
