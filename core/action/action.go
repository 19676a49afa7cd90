// Package action encodes and decodes inline button callback data. The wire
// form is "<name>|<payload>", optionally prefixed by Telegram clients that
// preserve the \f marker some libraries emit.
package action

import (
	"strconv"
	"strings"
)

// Callback names used across menus and wizards.
const (
	Button      = "btn"
	Back        = "back"
	BroadcastGo = "bc_go"
	BroadcastNo = "bc_no"
	PickAction  = "pick_action"
	PickMenu    = "pick_menu"
	PickBot     = "pick_bot"
	RemoveGo    = "rm_go"
	RemoveNo    = "rm_no"
)

// Encode builds callback data for an inline button.
func Encode(name, payload string) string {
	if payload == "" {
		return name
	}
	return name + "|" + payload
}

// EncodeInt64 builds callback data carrying a numeric payload.
func EncodeInt64(name string, v int64) string {
	return Encode(name, strconv.FormatInt(v, 10))
}

// Parse splits callback data into its name and payload. The payload keeps any
// further separators intact.
func Parse(data string) (name, payload string) {
	raw := strings.TrimPrefix(data, "\f")
	raw = strings.TrimPrefix(raw, "\\f")
	parts := strings.SplitN(raw, "|", 2)
	name = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		payload = parts[1]
	}
	return name, payload
}

// PayloadInt64 parses a numeric payload.
func PayloadInt64(payload string) (int64, error) {
	return strconv.ParseInt(payload, 10, 64)
}
