package notify

import (
	"fmt"
	"strings"
)

// NormalizePhone canonicalizes a phone number to E.164. Ten-digit numbers
// are assumed to be US/Canada; eleven digits starting with 1 likewise. A
// number that already carries a country code (leading +) is kept after
// digit-count validation. Anything else is an error, which the dispatcher
// turns into a per-recipient skip.
func NormalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty phone number")
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case hasPlus:
		if len(d) < 8 || len(d) > 15 {
			return "", fmt.Errorf("invalid international number %q", raw)
		}
		return "+" + d, nil
	case len(d) == 10:
		return "+1" + d, nil
	case len(d) == 11 && d[0] == '1':
		return "+" + d, nil
	default:
		return "", fmt.Errorf("unrecognized phone number %q", raw)
	}
}
