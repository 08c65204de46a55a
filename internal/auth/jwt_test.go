package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/domain/order"
)

func newTestJWTService() *JWTService {
	return NewJWTService("test-secret-key-for-testing-purposes", 15*time.Minute)
}

func TestNewJWTService(t *testing.T) {
	service := newTestJWTService()
	assert.NotNil(t, service)
	assert.Equal(t, 15*time.Minute, service.GetAccessTokenExpiry())
}

func TestJWTService_GenerateAccessToken_Success(t *testing.T) {
	service := newTestJWTService()

	token, expiresAt, err := service.GenerateAccessToken("cust-123", order.RoleCustomer, "")

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.True(t, expiresAt.Before(time.Now().Add(16*time.Minute)))
}

func TestJWTService_GenerateAccessToken_OperatorNeedsStore(t *testing.T) {
	service := newTestJWTService()

	_, _, err := service.GenerateAccessToken("op-1", order.RoleOperator, "")
	assert.Error(t, err)

	_, _, err = service.GenerateAccessToken("x", order.Role("courier"), "store-1")
	assert.Error(t, err)
}

func TestJWTService_ValidateAccessToken_Customer(t *testing.T) {
	service := newTestJWTService()

	token, _, err := service.GenerateAccessToken("cust-456", order.RoleCustomer, "store-ignored")
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)

	require.NoError(t, err)
	assert.Equal(t, "cust-456", claims.UserID)
	assert.Equal(t, order.RoleCustomer, claims.Role)
	assert.Empty(t, claims.StoreID)
	assert.Equal(t, "cust-456", claims.Subject)
	assert.Equal(t, order.Customer("cust-456"), claims.Actor())
}

func TestJWTService_ValidateAccessToken_Operator(t *testing.T) {
	service := newTestJWTService()

	token, _, err := service.GenerateAccessToken("op-7", order.RoleOperator, "store-1")
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)

	require.NoError(t, err)
	assert.Equal(t, order.Operator("store-1"), claims.Actor())
}

func TestJWTService_ValidateAccessToken_Expired(t *testing.T) {
	// Create a service with very short expiry
	service := NewJWTService("test-secret", 1*time.Millisecond)

	token, _, err := service.GenerateAccessToken("cust-123", order.RoleCustomer, "")
	require.NoError(t, err)

	// Wait for token to expire
	time.Sleep(10 * time.Millisecond)

	claims, err := service.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_Invalid(t *testing.T) {
	service := newTestJWTService()

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"random string", "not-a-valid-token"},
		{"malformed JWT", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTService_ValidateAccessToken_WrongSignature(t *testing.T) {
	service1 := NewJWTService("secret-key-1", 15*time.Minute)
	service2 := NewJWTService("secret-key-2", 15*time.Minute)

	token, _, err := service1.GenerateAccessToken("cust-123", order.RoleCustomer, "")
	require.NoError(t, err)

	claims, err := service2.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_WrongAlgorithm(t *testing.T) {
	service := newTestJWTService()

	// Create a token with a different algorithm (none)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID: "cust-123",
		Role:   order.RoleCustomer,
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_ForgedRole(t *testing.T) {
	service := newTestJWTService()

	// Signed correctly, but an operator without a store cannot act on orders
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: "op-1",
		Role:   order.RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	tokenString, err := forged.SignedString(service.secretKey)
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
