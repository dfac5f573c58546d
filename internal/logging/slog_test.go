package logging

import (
	"errors"
	"strings"
	"testing"
)

func TestAnonymizeEmail(t *testing.T) {
	if got := AnonymizeEmail(""); got != "" {
		t.Errorf("expected empty string for empty email, got %q", got)
	}

	h1 := AnonymizeEmail("user@example.com")
	h2 := AnonymizeEmail("user@example.com")
	h3 := AnonymizeEmail("other@example.com")

	if h1 != h2 {
		t.Error("same email must hash to the same value")
	}
	if h1 == h3 {
		t.Error("different emails must hash to different values")
	}
	if !strings.HasPrefix(h1, "user:") {
		t.Errorf("expected user: prefix, got %q", h1)
	}
	if strings.Contains(h1, "example.com") {
		t.Error("anonymized email must not contain the original address")
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken(""); got != "<empty>" {
		t.Errorf("expected <empty>, got %q", got)
	}

	got := SanitizeToken("ya29.secret-token")
	if strings.Contains(got, "secret") {
		t.Errorf("sanitized token must not contain token content, got %q", got)
	}
	if !strings.Contains(got, "17") {
		t.Errorf("expected length indicator in %q", got)
	}
}

func TestErr_NilSafe(t *testing.T) {
	attr := Err(nil)
	if attr.Key != "" {
		t.Errorf("expected empty group for nil error, got key %q", attr.Key)
	}

	attr = Err(errors.New("boom"))
	if attr.Key != KeyError {
		t.Errorf("expected %q key, got %q", KeyError, attr.Key)
	}
}
