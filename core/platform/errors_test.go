package platform

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"forbidden", &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, KindPermissionRevoked},
		{"flood", tele.FloodError{RetryAfter: 5}, KindRateLimited},
		{"flood status", &tele.Error{Code: 429, Description: "Too Many Requests"}, KindRateLimited},
		{"chat missing", &tele.Error{Code: 400, Description: "Bad Request: chat not found"}, KindNotFound},
		{"gone", &tele.Error{Code: 404, Description: "Not Found"}, KindNotFound},
		{"server", &tele.Error{Code: 500, Description: "Internal Server Error"}, KindOther},
		{"plain", errors.New("connection reset"), KindOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got != tc.want {
				t.Fatalf("Classify(%s) = %s, want %s", tc.name, got, tc.want)
			}
		})
	}
}

func TestClassifyErrorIdempotent(t *testing.T) {
	base := &tele.Error{Code: 403, Description: "Forbidden"}
	wrapped := ClassifyError(base)
	again := ClassifyError(wrapped)
	if wrapped != again {
		t.Fatalf("double wrap: %v != %v", wrapped, again)
	}
	var pe *Error
	if !errors.As(again, &pe) || pe.Kind != KindPermissionRevoked {
		t.Fatalf("expected permission_revoked wrap, got %v", again)
	}
	if !errors.Is(again, base) {
		t.Fatal("wrapped error lost the cause")
	}
}

func TestSanitizeRedactsToken(t *testing.T) {
	msg := "Post https://api.telegram.org/bot123456:AAHdqTcvbXJ3xWauu-Ap9QRt2eX3sQ/sendMessage: timeout"
	got := Sanitize(errors.New(msg))
	if strings.Contains(got, "123456:AAH") {
		t.Fatalf("token leaked: %s", got)
	}
	if !strings.Contains(got, "bot<redacted>") {
		t.Fatalf("expected redaction marker, got: %s", got)
	}
}
