package otp

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// ErrInvalidPhone is returned for input that is not an E.164-like number.
var ErrInvalidPhone = errors.New("invalid phone number")

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// NormalizePhone strips whitespace and validates the result. The normalized
// form is the challenge key and the stored account phone.
func NormalizePhone(raw string) (string, error) {
	phone := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}
