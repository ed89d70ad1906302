package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-service/internal/auth"
	"task-service/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	parser := auth.NewParser("test-secret-key")
	userID := uuid.New()

	token, err := parser.Issue(userID, model.RoleSupervisor, time.Hour)
	require.NoError(t, err)

	claims, err := parser.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, model.RoleSupervisor, claims.Role)
}

func TestParse_InvalidToken(t *testing.T) {
	parser := auth.NewParser("test-secret-key")

	_, err := parser.Parse("invalid-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParse_WrongSecret(t *testing.T) {
	token, err := auth.NewParser("other-secret").Issue(uuid.New(), model.RoleAdmin, time.Hour)
	require.NoError(t, err)

	_, err = auth.NewParser("test-secret-key").Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParse_ExpiredToken(t *testing.T) {
	parser := auth.NewParser("test-secret-key")

	token, err := parser.Issue(uuid.New(), model.RoleTechnician, -time.Hour)
	require.NoError(t, err)

	_, err = parser.Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParse_MissingExpiry(t *testing.T) {
	claims := jwt.MapClaims{"sub": uuid.NewString()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	_, err = auth.NewParser("test-secret-key").Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParse_SubjectNotUUID(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "not-a-uuid",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	_, err = auth.NewParser("test-secret-key").Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidClaims)
}
