package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/auth"
)

func TestIssueAndVerifyRoundTrips(t *testing.T) {
	s := auth.NewService("test-secret", time.Hour)

	tok, err := s.Issue("staff-1", "Dr. Rao", "receptionist")
	require.NoError(t, err)

	claims, err := s.Verify("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.StaffID)
	assert.Equal(t, "receptionist", claims.Role)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s := auth.NewService("test-secret", time.Hour)
	_, err := s.Verify("not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := auth.NewService("test-secret", -time.Hour)
	tok, err := s.Issue("staff-1", "Dr. Rao", "receptionist")
	require.NoError(t, err)

	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}
