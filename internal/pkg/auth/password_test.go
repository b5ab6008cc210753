// internal/pkg/auth/password_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/your-org/storefront-backend/internal/testutil"
)

func fastPasswordManager() *PasswordManager {
	cfg := testutil.NewConfig()
	cfg.Security.BcryptCost = bcrypt.MinCost
	return NewPasswordManager(cfg)
}

func TestHashAndVerifyPassword(t *testing.T) {
	pm := fastPasswordManager()

	hash, err := pm.HashPassword("s3cret-Pass!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-Pass!", hash)

	assert.NoError(t, pm.VerifyPassword("s3cret-Pass!", hash))
	assert.Error(t, pm.VerifyPassword("wrong-pass", hash))
}

func TestHashPasswordSalts(t *testing.T) {
	pm := fastPasswordManager()

	first, err := pm.HashPassword("same input")
	require.NoError(t, err)
	second, err := pm.HashPassword("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	pm := fastPasswordManager()

	_, err := pm.HashPassword("")
	assert.Error(t, err)
}

func TestNewPasswordManagerClampsCost(t *testing.T) {
	cfg := testutil.NewConfig()
	cfg.Security.BcryptCost = 99

	pm := NewPasswordManager(cfg)
	assert.Equal(t, bcrypt.DefaultCost, pm.cost)
}
