package tier

import "strings"

// Tier names a subscription plan of a platform user.
type Tier string

const (
	// Free is the default plan for new users.
	Free Tier = "free"
	// Basic is the entry paid plan.
	Basic Tier = "basic"
	// Advanced is the mid paid plan.
	Advanced Tier = "advanced"
	// Business is the top plan with no resource ceilings.
	Business Tier = "business"
)

// Unlimited marks a ceiling that is not enforced.
const Unlimited = -1

// Limits holds the resource ceilings of a plan. Unlimited disables a ceiling.
type Limits struct {
	MaxBots           int
	MaxMenus          int
	MaxButtonsPerMenu int
}

var limitsByTier = map[Tier]Limits{
	Free:     {MaxBots: 3, MaxMenus: 3, MaxButtonsPerMenu: 6},
	Basic:    {MaxBots: 10, MaxMenus: Unlimited, MaxButtonsPerMenu: 12},
	Advanced: {MaxBots: 20, MaxMenus: Unlimited, MaxButtonsPerMenu: 24},
	Business: {MaxBots: Unlimited, MaxMenus: Unlimited, MaxButtonsPerMenu: Unlimited},
}

// Parse normalizes a stored tier name, defaulting unknown values to Free.
func Parse(raw string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case Basic:
		return Basic
	case Advanced:
		return Advanced
	case Business:
		return Business
	default:
		return Free
	}
}

// LimitsFor returns the ceilings of the given plan.
func LimitsFor(t Tier) Limits {
	if l, ok := limitsByTier[t]; ok {
		return l
	}
	return limitsByTier[Free]
}

// Allows reports whether a plan ceiling permits one more resource given the
// current count. Ceilings are checked at the commit point of the operation,
// not at flow start.
func Allows(limit, current int) bool {
	if limit == Unlimited {
		return true
	}
	return current < limit
}
