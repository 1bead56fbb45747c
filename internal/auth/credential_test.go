package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

func TestCredentialVerifier(t *testing.T) {
	v := CredentialVerifier{Cost: bcrypt.MinCost}
	hash, err := v.Hash("s3cret")
	require.NoError(t, err)

	assert.True(t, v.Check("s3cret", hash))
	assert.False(t, v.Check("S3cret", hash))
	assert.False(t, v.Check("", hash))
}

func TestCredentialVerifierMalformedHash(t *testing.T) {
	v := CredentialVerifier{}
	for _, h := range []string{"", "plain", "$2a$", "$2a$10$tooshort"} {
		assert.NotPanics(t, func() {
			assert.False(t, v.Check("anything", h))
		})
	}
}

func TestSecondFactorVerifier(t *testing.T) {
	var v SecondFactorVerifier
	admin := &entity.User{Role: entity.RoleAdmin, SecondFactorSecret: entity.StrPtr("2006")}

	assert.True(t, v.Check(admin, "2006"))
	assert.False(t, v.Check(admin, "02006"))
	assert.False(t, v.Check(admin, "2006 "))
	assert.False(t, v.Check(admin, ""))

	noSecret := &entity.User{Role: entity.RoleAdmin}
	assert.False(t, v.Check(noSecret, ""))
	assert.False(t, v.Check(noSecret, "2006"))

	plain := &entity.User{Role: entity.RoleUser, SecondFactorSecret: entity.StrPtr("2006")}
	assert.False(t, v.Check(plain, "2006"))
}
