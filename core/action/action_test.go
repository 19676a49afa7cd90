package action

import "testing"

func TestEncodeParseRoundtrip(t *testing.T) {
	cases := []struct {
		data    string
		name    string
		payload string
	}{
		{Encode("btn", "42"), "btn", "42"},
		{Encode("back", ""), "back", ""},
		{Encode("pick_menu", "7|extra"), "pick_menu", "7|extra"},
		{"\fbtn|42", "btn", "42"},
		{"\\fbc_go|9", "bc_go", "9"},
	}
	for _, tc := range cases {
		name, payload := Parse(tc.data)
		if name != tc.name || payload != tc.payload {
			t.Fatalf("Parse(%q) = (%q, %q), want (%q, %q)", tc.data, name, payload, tc.name, tc.payload)
		}
	}
}

func TestPayloadInt64(t *testing.T) {
	v, err := PayloadInt64("42")
	if err != nil || v != 42 {
		t.Fatalf("PayloadInt64 = %d, %v", v, err)
	}
	if _, err := PayloadInt64("not a number"); err == nil {
		t.Fatal("expected error for a non-numeric payload")
	}
}
