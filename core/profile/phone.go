package profile

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/width"
)

const (
	malaysiaCode   = "60"
	phoneMinDigits = 8
	phoneMaxDigits = 15
)

var (
	ErrPhoneTooShort   = errors.New("phone number has too few digits")
	ErrPhoneTooLong    = errors.New("phone number has too many digits")
	ErrPhoneNoCountry  = errors.New("phone number has no recognizable country code")
	ErrPhoneCharacters = errors.New("phone number contains invalid characters")
)

// NormalizePhone converts a phone number to E.164. Full-width digits are folded and
// separators dropped; local Malaysian numbers get the +60 country code. An empty input
// is returned as is.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(width.Fold.String(raw))
	if s == "" {
		return "", nil
	}

	plus := strings.HasPrefix(s, "+")
	var digits strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '/':
		default:
			return "", ErrPhoneCharacters
		}
	}

	d := digits.String()
	switch {
	case plus:
	case strings.HasPrefix(d, "00"):
		d = d[2:]
	case strings.HasPrefix(d, malaysiaCode):
	case strings.HasPrefix(d, "0"):
		d = malaysiaCode + d[1:]
	default:
		return "", ErrPhoneNoCountry
	}

	switch {
	case len(d) < phoneMinDigits:
		return "", ErrPhoneTooShort
	case len(d) > phoneMaxDigits:
		return "", ErrPhoneTooLong
	}
	return "+" + d, nil
}
