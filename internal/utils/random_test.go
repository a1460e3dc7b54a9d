package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateReferenceCode(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := GenerateReferenceCode()
		if !strings.HasPrefix(code, "RH-") {
			t.Fatalf("expected the RH- prefix, got %q", code)
		}
		if len(code) != 11 {
			t.Fatalf("expected 11 characters, got %q", code)
		}
		for _, c := range code[3:] {
			if !strings.ContainsRune(referenceCharset, c) {
				t.Fatalf("unexpected character %q in %q", c, code)
			}
		}
		if seen[code] {
			t.Fatalf("duplicate code %q after %d generations", code, i)
		}
		seen[code] = true
	}
}

func TestGenerateIdempotencyReference(t *testing.T) {
	t.Parallel()

	ref := GenerateIdempotencyReference()
	if _, err := uuid.Parse(ref); err != nil {
		t.Fatalf("expected a parseable uuid, got %q: %v", ref, err)
	}
	if ref == GenerateIdempotencyReference() {
		t.Error("expected fresh references on every call")
	}
}
