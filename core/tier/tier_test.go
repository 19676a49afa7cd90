package tier

import "testing"

func TestParseDefaultsToFree(t *testing.T) {
	if got := Parse("enterprise"); got != Free {
		t.Fatalf("Parse(enterprise) = %s, expected free", got)
	}
	if got := Parse(" Business "); got != Business {
		t.Fatalf("Parse(Business) = %s, expected business", got)
	}
}

func TestAllows(t *testing.T) {
	if !Allows(Unlimited, 1_000_000) {
		t.Fatal("unlimited ceiling must always allow")
	}
	if !Allows(3, 2) {
		t.Fatal("expected 2 of 3 to allow one more")
	}
	if Allows(3, 3) {
		t.Fatal("expected 3 of 3 to deny")
	}
}

func TestLimitsForFreePlan(t *testing.T) {
	l := LimitsFor(Free)
	if l.MaxBots != 3 || l.MaxMenus != 3 {
		t.Fatalf("unexpected free limits: %+v", l)
	}
	if LimitsFor(Business).MaxBots != Unlimited {
		t.Fatal("business plan must have unlimited bots")
	}
}
