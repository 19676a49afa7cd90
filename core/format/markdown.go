// Package format holds small text helpers for outbound Telegram messages.
package format

import "regexp"

var mdSpecials = regexp.MustCompile("([_*\\[`])")

// EscapeMarkdown escapes user-supplied text so it renders literally under
// legacy Markdown parse mode.
func EscapeMarkdown(text string) string {
	return mdSpecials.ReplaceAllString(text, `\$1`)
}

// Bold wraps already-escaped text in bold markers.
func Bold(text string) string { return "*" + text + "*" }

// Italic wraps already-escaped text in italic markers.
func Italic(text string) string { return "_" + text + "_" }

// Code wraps text in inline code markers.
func Code(text string) string { return "`" + text + "`" }
