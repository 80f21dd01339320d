package proctor

import (
	"crypto/subtle"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// SecurityCodeLength is the exact length of the gate code.
const SecurityCodeLength = 6

// CodeVerifier checks a security code entry.
type CodeVerifier interface {
	Verify(entry string) bool
}

// PlainCode compares against a code held in configuration.
type PlainCode string

func (c PlainCode) Verify(entry string) bool {
	if utf8.RuneCountInString(entry) != SecurityCodeLength {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(entry), []byte(c)) == 1
}

// HashedCode compares against a bcrypt hash of the code.
type HashedCode []byte

func (h HashedCode) Verify(entry string) bool {
	if utf8.RuneCountInString(entry) != SecurityCodeLength {
		return false
	}
	return bcrypt.CompareHashAndPassword(h, []byte(entry)) == nil
}

// NewCodeVerifier prefers a bcrypt hash and falls back to the plain code.
func NewCodeVerifier(plain, hash string) (CodeVerifier, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("security code hash: %w", err)
		}
		return HashedCode(hash), nil
	}
	if utf8.RuneCountInString(plain) != SecurityCodeLength {
		return nil, ErrInvalidSecurityCode
	}
	return PlainCode(plain), nil
}

// truncateCode keeps at most SecurityCodeLength characters.
func truncateCode(entry string) string {
	if utf8.RuneCountInString(entry) <= SecurityCodeLength {
		return entry
	}
	return string([]rune(entry)[:SecurityCodeLength])
}
