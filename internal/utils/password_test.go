package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_Salted(t *testing.T) {
	first, err := HashPassword("student-pass-1")
	require.NoError(t, err)
	second, err := HashPassword("student-pass-1")
	require.NoError(t, err)

	assert.NotEqual(t, "student-pass-1", first)
	assert.NotEqual(t, first, second)
	assert.True(t, CheckPassword("student-pass-1", first))
	assert.True(t, CheckPassword("student-pass-1", second))
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("admin123")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
	}{
		{"matching", "admin123", hash, true},
		{"wrong", "admin124", hash, false},
		{"case differs", "ADMIN123", hash, false},
		{"empty attempt", "", hash, false},
		{"not a bcrypt hash", "admin123", "admin123", false},
		// accounts created by OTP sign-in or LDAP have no local password
		{"otp-only account", "", "", false},
		{"otp-only account with guess", "anything", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckPassword(tt.password, tt.hash))
		})
	}
}
