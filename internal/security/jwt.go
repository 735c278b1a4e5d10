package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// ActorClaims defines JWT claims for booth operators and dashboard staff.
// Identity management lives outside this service; the claims carry just
// enough to attribute actions.
type ActorClaims struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
	Staff   bool   `json:"staff"`
	jwt.RegisteredClaims
}

// GenerateActorToken signs an actor JWT with the configured expiry.
func GenerateActorToken(secret, actorID, name string, staff bool, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := ActorClaims{
		ActorID: actorID,
		Name:    name,
		Staff:   staff,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseActorToken validates an actor JWT and returns its claims.
func ParseActorToken(secret string, tokenString string) (*ActorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActorClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
