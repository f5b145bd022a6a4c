package diary

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// NewPairingCode returns a random code of the form NNN-NNN whose first
// digit is never zero.
func NewPairingCode() string {
	return FormatCode(fmt.Sprintf("%06d", 100000+rand.IntN(900000)))
}

// FormatCode turns six digits into NNN-NNN. Other input is returned as is.
func FormatCode(digits string) string {
	if len(digits) != 6 || Digits(digits) != digits {
		return digits
	}
	return digits[:3] + "-" + digits[3:]
}

// Digits drops every non-digit character.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MinPhoneDigits is the length of a Thai subscriber number without the
// trunk prefix.
const MinPhoneDigits = 9

// PhoneKey normalizes a phone number for lookup: digits only, last nine,
// so that 081-234-5678 and +66 81 234 5678 match. It returns "" for
// numbers too short to be valid.
func PhoneKey(phone string) string {
	d := Digits(phone)
	if len(d) < MinPhoneDigits {
		return ""
	}
	return d[len(d)-MinPhoneDigits:]
}
