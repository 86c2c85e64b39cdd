package normalize

import "strings"

// NormalizePhoneNumber canonicalizes a phone number to E.164. Numbers
// without a country code default to +91. Ten-digit Indian mobile numbers
// must start with 6-9; shorter landline numbers require an STD area code
// starting with 0, which is dropped in the E.164 form.
func NormalizePhoneNumber(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}

	hasPlus := strings.HasPrefix(s, "+")
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return "", false
	}

	if hasPlus {
		// Already carries a country code; E.164 allows up to 15 digits
		if len(d) < 8 || len(d) > 15 {
			return "", false
		}
		return "+" + d, true
	}

	// 00 international prefix
	if strings.HasPrefix(d, "00") && len(d) > 10 {
		d = d[2:]
		if len(d) < 8 || len(d) > 15 {
			return "", false
		}
		return "+" + d, true
	}

	// 91 prefix with a full mobile number behind it
	if strings.HasPrefix(d, "91") && len(d) == 12 && isMobileDigit(d[2]) {
		return "+" + d, true
	}

	// Bare 10-digit mobile
	if len(d) == 10 && isMobileDigit(d[0]) {
		return "+91" + d, true
	}

	// Landline with STD code: leading 0 plus 9-10 digits
	if strings.HasPrefix(d, "0") && (len(d) == 10 || len(d) == 11) {
		return "+91" + d[1:], true
	}

	return "", false
}

func isMobileDigit(b byte) bool {
	return b >= '6' && b <= '9'
}
