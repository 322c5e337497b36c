package resilience

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvariantViolation_Error(t *testing.T) {
	err := NewInvariantViolation("single_active_match", "canonical lead lead-1 has 2 active matches")
	assert.Contains(t, err.Error(), "single_active_match")
	assert.Contains(t, err.Error(), "lead-1")
}

func TestValidationError_WithField(t *testing.T) {
	err := NewValidationError("email", "does not match required pattern")
	assert.Equal(t, "email: does not match required pattern", err.Error())
}

func TestValidationError_NoField(t *testing.T) {
	err := NewValidationError("", "row has no non-empty required column")
	assert.Equal(t, "row has no non-empty required column", err.Error())
}

func TestPermanentInfraError_Unwrap(t *testing.T) {
	inner := errors.New("invalid api key")
	err := NewPermanentInfraError(inner)
	assert.ErrorIs(t, err, inner)
}

func TestWrapInfra_Transient(t *testing.T) {
	err := WrapInfra(&net.DNSError{IsTimeout: true}, "crm.fetch")
	assert.True(t, IsTransient(err))

	var perm *PermanentInfraError
	assert.False(t, errors.As(err, &perm))
}

func TestWrapInfra_Permanent(t *testing.T) {
	err := WrapInfra(errors.New("401 unauthorized"), "crm.fetch")

	var perm *PermanentInfraError
	assert.True(t, errors.As(err, &perm))
}

func TestWrapInfra_Nil(t *testing.T) {
	assert.NoError(t, WrapInfra(nil, "noop"))
}
