package submission

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	phoneCharsRegex      = regexp.MustCompile(`^\+?[0-9()\-.\s]+$`)
	dateRegex            = regexp.MustCompile(`^(\d{1,2}[\s./-]+\d{1,2}[\s./-]+\d{4}|\d{4}[\s./-]+\d{1,2}[\s./-]+\d{1,2})$`)
	nameWordRegex        = regexp.MustCompile(`^\p{L}[\p{L}'’.\-]*$`)
	userIDSeparatorRegex = regexp.MustCompile(`[^\p{L}\p{N}._@\-]+`)
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
	maxNameWords   = 5
	maxNameLength  = 100
)

// foldKey case-folds a field name. A Caser is stateful, so one is made per call.
func foldKey(key string) string {
	return cases.Fold().String(key)
}

func keyContains(key, word string) bool {
	return strings.Contains(foldKey(key), word)
}

func isEmailKey(key string) bool {
	return keyContains(key, "email")
}

func looksLikeEmail(value string) bool {
	return strings.Contains(value, "@")
}

func isPhoneKey(key string) bool {
	return keyContains(key, "phone")
}

func looksLikePhone(value string) bool {
	if !phoneCharsRegex.MatchString(value) || dateRegex.MatchString(value) {
		return false
	}
	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

func isNameKey(key string) bool {
	return keyContains(key, "name")
}

// looksLikeName accepts two to five words made of letters, allowing
// apostrophes, hyphens and initials ("Mary-Jane O'Neil", "J. Doe").
func looksLikeName(value string) bool {
	if len(value) > maxNameLength {
		return false
	}
	words := strings.Fields(value)
	if len(words) < 2 || len(words) > maxNameWords {
		return false
	}
	for _, w := range words {
		if !nameWordRegex.MatchString(w) {
			return false
		}
	}
	return true
}

func isBlank(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "undefined")
}

// SanitizeUserID turns a free-text name into an opaque identifier: NFC
// normalised, with every run of whitespace or punctuation replaced by "_".
func SanitizeUserID(raw string) string {
	s := norm.NFC.String(strings.TrimSpace(raw))
	s = userIDSeparatorRegex.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
