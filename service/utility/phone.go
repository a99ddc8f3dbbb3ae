package utility

import (
	"errors"
	"strings"
)

const (
	countryCode      = "254"
	subscriberLength = 9
	canonicalLength  = len(countryCode) + subscriberLength
)

var ErrInvalidPhone = errors.New("phone number is not a valid Kenyan mobile number")

// NormalizePhone converts any of the accepted local and international forms
// (07XXXXXXXX, 01XXXXXXXX, 7XXXXXXXX, 2547XXXXXXXX, +254 7XX XXX XXX) into the
// gateway's canonical 2547XXXXXXXX form.
func NormalizePhone(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '+' || r == '(' || r == ')':
			return -1
		default:
			return 'x'
		}
	}, strings.TrimSpace(phone))

	if strings.ContainsRune(digits, 'x') {
		return "", ErrInvalidPhone
	}

	switch {
	case len(digits) == canonicalLength && strings.HasPrefix(digits, countryCode):
		digits = digits[len(countryCode):]
	case len(digits) == subscriberLength+1 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	case len(digits) == subscriberLength:
	default:
		return "", ErrInvalidPhone
	}

	if digits[0] != '7' && digits[0] != '1' {
		return "", ErrInvalidPhone
	}

	return countryCode + digits, nil
}
