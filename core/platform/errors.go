package platform

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Kind is the closed classification of outbound platform failures.
type Kind string

const (
	// KindPermissionRevoked means the recipient blocked or deleted the bot.
	// It is the only kind with a durable side effect downstream.
	KindPermissionRevoked Kind = "permission_revoked"
	// KindNotFound means the chat or resource no longer exists.
	KindNotFound Kind = "not_found"
	// KindRateLimited means the platform asked us to slow down.
	KindRateLimited Kind = "rate_limited"
	// KindOther covers everything else.
	KindOther Kind = "other"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Error wraps a transport failure with its classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("platform: %s: %s", e.Kind, Sanitize(e.Err))
}

func (e *Error) Unwrap() error { return e.Err }

// ClassifyError wraps err into *Error, classifying it once.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: Classify(err), Err: err}
}

// Classify maps a raw transport error onto the closed kind set.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}

	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return KindRateLimited
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden:
			return KindPermissionRevoked
		case http.StatusTooManyRequests:
			return KindRateLimited
		case http.StatusNotFound:
			return KindNotFound
		case http.StatusBadRequest:
			if strings.Contains(strings.ToLower(apiErr.Description), "not found") {
				return KindNotFound
			}
		}
		return KindOther
	}

	switch httpStatusFromError(err) {
	case http.StatusForbidden:
		return KindPermissionRevoked
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusNotFound:
		return KindNotFound
	}
	return KindOther
}

// Sanitize renders an error message with any embedded bot token redacted.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if msg == "" {
		return ""
	}
	return tokenRe.ReplaceAllString(msg, "bot<redacted>")
}

// httpStatusFromError digs an HTTP status out of loosely formatted transport
// errors whose message ends with "(NNN)".
func httpStatusFromError(err error) int {
	msg := err.Error()
	if msg == "" {
		return 0
	}
	lastOpen := strings.LastIndex(msg, "(")
	lastClose := strings.LastIndex(msg, ")")
	if lastOpen >= 0 && lastClose > lastOpen+1 {
		codeStr := strings.TrimSpace(msg[lastOpen+1 : lastClose])
		if code, convErr := strconv.Atoi(codeStr); convErr == nil {
			return code
		}
	}
	return 0
}
