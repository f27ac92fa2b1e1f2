package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateToken(t *testing.T) {
	jwtManager := NewJWTManager("test-secret", "test-issuer", 24*time.Hour)

	token, err := jwtManager.GenerateToken(42, "testuser")

	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Parse the token to verify its contents
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})

	require.NoError(t, err)
	assert.True(t, parsedToken.Valid)

	claims := parsedToken.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(42), claims["user_id"])
	assert.Equal(t, "testuser", claims["handle"])
	assert.Equal(t, "test-issuer", claims["iss"])
}

func TestJWTManager_ValidateToken(t *testing.T) {
	jwtManager := NewJWTManager("test-secret", "test-issuer", 24*time.Hour)

	tests := []struct {
		name        string
		setupToken  func() string
		expectError bool
	}{
		{
			name: "Valid token",
			setupToken: func() string {
				token, _ := jwtManager.GenerateToken(42, "testuser")
				return token
			},
			expectError: false,
		},
		{
			name: "Invalid token",
			setupToken: func() string {
				return "invalid.jwt.token"
			},
			expectError: true,
		},
		{
			name: "Token with wrong secret",
			setupToken: func() string {
				wrongManager := NewJWTManager("wrong-secret", "test-issuer", 24*time.Hour)
				token, _ := wrongManager.GenerateToken(42, "testuser")
				return token
			},
			expectError: true,
		},
		{
			name: "Expired token",
			setupToken: func() string {
				expiredManager := NewJWTManager("test-secret", "test-issuer", -time.Hour)
				token, _ := expiredManager.GenerateToken(42, "testuser")
				return token
			},
			expectError: true,
		},
		{
			name: "Empty token",
			setupToken: func() string {
				return ""
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := jwtManager.ValidateToken(tt.setupToken())
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint(42), claims.UserID)
			assert.Equal(t, "testuser", claims.Handle)
		})
	}
}

func TestJWTManager_ExtractTokenFromBearer(t *testing.T) {
	jwtManager := NewJWTManager("test-secret", "test-issuer", 24*time.Hour)

	assert.Equal(t, "abc123", jwtManager.ExtractTokenFromBearer("Bearer abc123"))
	assert.Equal(t, "", jwtManager.ExtractTokenFromBearer("abc123"))
	assert.Equal(t, "", jwtManager.ExtractTokenFromBearer(""))
	assert.Equal(t, "", jwtManager.ExtractTokenFromBearer("Bearer"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.NoError(t, VerifyPassword("correct horse battery staple", hash))
	assert.Error(t, VerifyPassword("wrong password", hash))
}
