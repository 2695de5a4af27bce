package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGate_ShouldBeDisabled_WhenNoKeysConfigured(t *testing.T) {
	// Arrange & Act
	g := NewGate(nil)

	// Assert
	assert.False(t, g.Enabled())
}

func TestGate_Authenticate_ShouldAcceptAnyToken_WhenGateDisabled(t *testing.T) {
	// Arrange
	g := NewGate(nil)

	// Act & Assert
	assert.NoError(t, g.Authenticate(""))
	assert.NoError(t, g.Authenticate("anything"))
}

func TestGate_Authenticate_ShouldRejectEmptyToken_WhenKeysConfigured(t *testing.T) {
	// Arrange
	g := NewGate([]string{"secret-1"})

	// Act
	err := g.Authenticate("")

	// Assert
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestGate_Authenticate_ShouldRejectUnknownToken(t *testing.T) {
	// Arrange
	g := NewGate([]string{"secret-1", "secret-2"})

	// Act
	err := g.Authenticate("secret-3")

	// Assert
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGate_Authenticate_ShouldAcceptConfiguredToken(t *testing.T) {
	// Arrange
	g := NewGate([]string{"secret-1", "secret-2"})

	// Act & Assert
	assert.NoError(t, g.Authenticate("secret-1"))
	assert.NoError(t, g.Authenticate("secret-2"))
}

func TestGate_Enabled_ShouldIgnoreEmptyStrings(t *testing.T) {
	// Arrange & Act
	g := NewGate([]string{"", ""})

	// Assert
	assert.False(t, g.Enabled())
}
