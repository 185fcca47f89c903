package extract

import (
	"strings"

	"sciencefeed/internal/rules"
)

// Category names the kind of bot-block page a response body looks like.
type Category int

const (
	CategoryNone Category = iota
	CategoryChallenge
	CategoryBotProtection
	CategoryAccessDenied
)

func (c Category) String() string {
	switch c {
	case CategoryChallenge:
		return "challenge"
	case CategoryBotProtection:
		return "bot_protection"
	case CategoryAccessDenied:
		return "access_denied"
	default:
		return "none"
	}
}

// Classify inspects a fetched body for bot-block markers. Matching is case-insensitive.
func Classify(body string, markers rules.BlockMarkers) Category {
	lower := strings.ToLower(body)
	switch {
	case containsAny(lower, markers.Challenge):
		return CategoryChallenge
	case containsAny(lower, markers.BotProtection):
		return CategoryBotProtection
	case containsAny(lower, markers.AccessDenied):
		return CategoryAccessDenied
	}
	return CategoryNone
}

func IsBlocked(body string, markers rules.BlockMarkers) bool {
	return Classify(body, markers) != CategoryNone
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
