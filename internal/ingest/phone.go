package ingest

import (
	"fmt"
	"strings"
)

// NormalizeUKPhone canonicalizes a raw phone value to E.164 (+44...).
//
// Accepted spellings: "+44...", "0044...", "44...", and national "0..."
// numbers. Separators and parentheses are stripped first. Anything that does
// not reduce to a plausible UK number is rejected; dialing a malformed
// number wastes an attempt and pollutes the rate counters.
func NormalizeUKPhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", fmt.Errorf("ingest: empty phone number")
	}

	var national string
	switch {
	case strings.HasPrefix(cleaned, "+44"):
		national = cleaned[3:]
	case strings.HasPrefix(cleaned, "0044"):
		national = cleaned[4:]
	case strings.HasPrefix(cleaned, "44") && len(cleaned) >= 11:
		national = cleaned[2:]
	case strings.HasPrefix(cleaned, "0"):
		national = cleaned[1:]
	default:
		return "", fmt.Errorf("ingest: unrecognized phone format %q", raw)
	}

	if !digitsOnly(national) {
		return "", fmt.Errorf("ingest: phone contains non-digits %q", raw)
	}
	// UK national significant numbers are 9 or 10 digits and never start
	// with 0 once the trunk prefix is gone.
	if len(national) < 9 || len(national) > 10 || national[0] == '0' {
		return "", fmt.Errorf("ingest: implausible UK number %q", raw)
	}

	return "+44" + national, nil
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
