package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/ec-storefront/internal/domain/order"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents JWT claims. Operators carry the store they act for;
// customers act for themselves.
type Claims struct {
	UserID  string     `json:"user_id"`
	Role    order.Role `json:"role"`
	StoreID string     `json:"store_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns who the token holder acts as on orders.
func (c *Claims) Actor() order.Actor {
	if c.Role == order.RoleOperator {
		return order.Operator(c.StoreID)
	}
	return order.Customer(c.UserID)
}

// JWTService handles JWT token operations
type JWTService struct {
	secretKey         []byte
	accessTokenExpiry time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(secretKey string, accessExpiry time.Duration) *JWTService {
	return &JWTService{
		secretKey:         []byte(secretKey),
		accessTokenExpiry: accessExpiry,
	}
}

// GenerateAccessToken creates a new access token. storeID is required for
// operators and ignored for customers.
func (s *JWTService) GenerateAccessToken(userID string, role order.Role, storeID string) (string, time.Time, error) {
	switch role {
	case order.RoleOperator:
		if storeID == "" {
			return "", time.Time{}, errors.New("operator tokens need a store id")
		}
	case order.RoleCustomer:
		storeID = ""
	default:
		return "", time.Time{}, errors.New("unknown role")
	}

	now := time.Now()
	expiresAt := now.Add(s.accessTokenExpiry)

	claims := Claims{
		UserID:  userID,
		Role:    role,
		StoreID: storeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role == order.RoleOperator && claims.StoreID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Role != order.RoleOperator && claims.Role != order.RoleCustomer {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetAccessTokenExpiry returns the access token expiry duration
func (s *JWTService) GetAccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}
