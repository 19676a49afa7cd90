package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"a_b", `a\_b`},
		{"*bold* [link", `\*bold\* \[link`},
		{"tick `x`", "tick \\`x\\`"},
	}
	for _, tc := range cases {
		if got := EscapeMarkdown(tc.in); got != tc.want {
			t.Fatalf("EscapeMarkdown(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
