package registration

import "strings"

const (
	phoneMinDigits = 10
	phoneMaxDigits = 15
)

// NormalizePhone strips common separators (spaces, dashes, dots, parentheses)
// and a single leading plus sign, returning the bare digit string. It returns
// "" when anything but digits remains after stripping.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '-', '.', '(', ')':
			continue
		}
		if r < '0' || r > '9' {
			return ""
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TypedPhone validates manually typed input: after normalization the digit
// string must be 10 to 15 digits long.
func TypedPhone(text string) (string, bool) {
	phone := NormalizePhone(text)
	if len(phone) < phoneMinDigits || len(phone) > phoneMaxDigits {
		return "", false
	}
	return phone, true
}
