// Package security provides password hashing and session token handling.
package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken indicates a token failed parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, errHash := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errHash != nil {
		return "", fmt.Errorf("hash password: %w", errHash)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the stored hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserClaims carries the authenticated user identity inside a JWT.
type UserClaims struct {
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into a user ID.
func (c *UserClaims) UserID() (uint64, error) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Subject), 10, 64)
	if errParse != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// IssueToken signs an HS256 session token for the user.
func IssueToken(secret string, expiry time.Duration, userID uint64) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now().UTC()
	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("sign token: %w", errSign)
	}
	return signed, nil
}

// ParseToken validates a session token and returns its claims.
func ParseToken(secret, tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	token, errParse := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if errParse != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
