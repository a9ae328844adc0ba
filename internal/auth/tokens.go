package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or shape checks
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the user identity inside access and refresh tokens
type Claims struct {
	UserID uint `json:"id"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 tokens. Access and refresh tokens use separate secrets.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenService creates a TokenService
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// GenerateAccessToken issues a short-lived token for userID
func (s *TokenService) GenerateAccessToken(userID uint) (string, error) {
	return s.sign(userID, s.accessSecret, s.accessTTL)
}

// GenerateRefreshToken issues a long-lived token for userID
func (s *TokenService) GenerateRefreshToken(userID uint) (string, error) {
	return s.sign(userID, s.refreshSecret, s.refreshTTL)
}

// ValidateAccessToken verifies an access token and returns its claims
func (s *TokenService) ValidateAccessToken(token string) (*Claims, error) {
	return s.parse(token, s.accessSecret)
}

// ValidateRefreshToken verifies a refresh token and returns its claims
func (s *TokenService) ValidateRefreshToken(token string) (*Claims, error) {
	return s.parse(token, s.refreshSecret)
}

func (s *TokenService) sign(userID uint, secret []byte, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
