package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any credential that fails validation.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal extracted from a credential.
type Identity struct {
	UserID string
}

// Validator checks a bearer credential and resolves the identity it carries.
type Validator interface {
	Validate(token string) (Identity, error)
}

// Claims is the access-token payload: the owning user id alongside the
// registered claims.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWT validates HMAC-signed access tokens.
type JWT struct {
	secret []byte
}

// NewJWT creates a validator for tokens signed with the given secret.
func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

// Validate parses and verifies a token and returns the identity it encodes.
func (j *JWT) Validate(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: no user_id claim", ErrInvalidToken)
	}
	return Identity{UserID: claims.UserID}, nil
}

// Sign issues a token for the given user, valid for ttl.
func Sign(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
