package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateAccessCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateAccessCode(10)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 10 {
			t.Fatalf("length %d", len(code))
		}
		for _, r := range code {
			if !strings.ContainsRune(accessCodeAlphabet, r) {
				t.Fatalf("unexpected rune %q in %s", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Fatalf("codes repeat too often: %d distinct", len(seen))
	}
	if _, err := GenerateAccessCode(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestPhoneNumbers(t *testing.T) {
	if err := ValidatePhoneNumber("55 1234 5678", "MX"); err != nil {
		t.Fatalf("valid number rejected: %v", err)
	}
	if got := FormatPhoneNumber("55 1234 5678", "MX"); got != "+525512345678" {
		t.Fatalf("format: %s", got)
	}
	if err := ValidatePhoneNumber("123", "MX"); err == nil {
		t.Fatalf("short number accepted")
	}
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		Name  string `validate:"required"`
		Email string `validate:"omitempty,email"`
	}
	if err := ValidateStruct(input{Name: "a"}); err != nil {
		t.Fatalf("valid input: %v", err)
	}
	err := ValidateStruct(input{Email: "nope"})
	if !errors.Is(err, ErrorInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if !strings.Contains(err.Error(), "Email=email") || !strings.Contains(err.Error(), "Name=required") {
		t.Fatalf("fields missing from %q", err.Error())
	}
}

func TestPasswords(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("short password accepted")
	}
	h, err := HashPassword("long enough")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if ComparePassword(string(h), "long enough") != nil || ComparePassword(string(h), "wrong") == nil {
		t.Fatalf("compare mismatch")
	}
}

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	tok, err := JwtGenerate(7, "supplier")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parsed, err := JwtValidate(tok)
	if err != nil || !parsed.Valid {
		t.Fatalf("validate: %v", err)
	}
	claims := parsed.Claims.(*JwtCustomClaim)
	if claims.ID != 7 || claims.Role != "supplier" {
		t.Fatalf("claims %+v", claims)
	}

	t.Setenv("API_SECRET", "other-secret")
	if _, err := JwtValidate(tok); err == nil {
		t.Fatalf("token signed with another secret accepted")
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"a", "b", "a", "", "b"})
	if strings.Join(got, ",") != "a,b," {
		t.Fatalf("got %v", got)
	}
}
