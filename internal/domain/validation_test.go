package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserAccount_Validate_Username(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{name: "empty", username: "", wantErr: true},
		{name: "one char", username: "a", wantErr: true},
		{name: "two chars", username: "ab", wantErr: false},
		{name: "thirty chars", username: strings.Repeat("a", 30), wantErr: false},
		{name: "thirty one chars", username: strings.Repeat("a", 31), wantErr: true},
		{name: "multibyte counted as runes", username: strings.Repeat("é", 30), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewUserAccount(tt.username, "").Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidUsername)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Len(t, vErr.Violations, 1)
			assert.Equal(t, "username", vErr.Violations[0].Field)
		})
	}
}

func TestUserAccount_Validate_RequiredMessage(t *testing.T) {
	err := NewUserAccount("", "").Validate()

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "required", vErr.Violations[0].Constraint)
	assert.Contains(t, err.Error(), "username is required")
}

func TestUserAccount_Validate_ForeignChildren(t *testing.T) {
	u := NewUserAccount("shopper", "")
	require.NoError(t, u.AssignID(1))
	u.Carts = append(u.Carts, &Cart{ID: 9, UserID: 2})
	u.Roles = append(u.Roles, &UserRoleLink{UserID: 3, Role: &Role{Name: "admin"}})

	err := u.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignOwner)
	assert.NotErrorIs(t, err, ErrInvalidUsername)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Len(t, vErr.Violations, 2)
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("ok"))
	assert.ErrorIs(t, ValidateUsername("x"), ErrInvalidUsername)
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("abcd"))
	assert.NoError(t, ValidatePassword("ILuvM4th!"))

	err := ValidatePassword("abc")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	assert.Contains(t, err.Error(), "password must be 4 or more characters")
}

func TestValidateRoleName(t *testing.T) {
	assert.NoError(t, ValidateRoleName("admin"))
	assert.ErrorIs(t, ValidateRoleName(""), ErrInvalidRoleName)
	assert.ErrorIs(t, ValidateRoleName("   "), ErrInvalidRoleName)
	assert.ErrorIs(t, ValidateRoleName(strings.Repeat("r", MaxRoleNameLength+1)), ErrInvalidRoleName)
}

func TestRole_Authority(t *testing.T) {
	assert.Equal(t, "ROLE_ADMIN", NewRole("admin").Authority())

	var l *UserRoleLink
	assert.Equal(t, "", l.Authority())
	assert.Equal(t, "", (&UserRoleLink{}).RoleName())
}
