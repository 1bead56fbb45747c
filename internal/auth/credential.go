package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// CredentialVerifier hashes and checks passwords with bcrypt. Timing
// resistance comes from bcrypt itself.
type CredentialVerifier struct{ Cost int }

func (b CredentialVerifier) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b CredentialVerifier) Hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Check reports whether supplied matches storedHash. A malformed or empty
// hash never matches.
func (b CredentialVerifier) Check(supplied, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(supplied)) == nil
}

// SecondFactorVerifier checks the static secondary code of admin accounts.
type SecondFactorVerifier struct{}

// Check compares code with the account secret as opaque strings. Non-admin
// accounts and accounts without a secret always fail.
func (SecondFactorVerifier) Check(u *entity.User, code string) bool {
	switch u.Role {
	case entity.RoleAdmin:
		if u.SecondFactorSecret == nil || *u.SecondFactorSecret == "" || code == "" {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(*u.SecondFactorSecret), []byte(code)) == 1
	case entity.RoleUser:
		return false
	}
	return false
}
