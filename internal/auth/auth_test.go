package auth

import (
	"errors"
	"testing"
)

func TestGenerateProducesDistinctTokens(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a == b {
		t.Fatal("two calls to Generate produced the same token")
	}
	if len(a) != 64 {
		t.Fatalf("Generate() token length = %d, want 64 hex chars", len(a))
	}
}

func TestCheckAcceptsMatchingToken(t *testing.T) {
	tok, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := tok.Check(string(tok)); err != nil {
		t.Fatalf("Check(matching) = %v, want nil", err)
	}
}

func TestCheckRejectsMismatch(t *testing.T) {
	tok := Token("correct")
	if err := tok.Check("wrong"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Check(mismatch) = %v, want ErrAuthFailed", err)
	}
}

func TestCheckFailsSecureOnEmptyConfiguredToken(t *testing.T) {
	tok := Token("")
	if err := tok.Check("anything"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Check with empty configured token = %v, want ErrAuthFailed", err)
	}
	if err := tok.Check(""); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Check(\"\") against empty configured token = %v, want ErrAuthFailed", err)
	}
}
