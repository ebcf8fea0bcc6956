//go:generate go run go.uber.org/mock/mockgen -source=token.go -destination=../mocks/mock_verifier.go -package=mocks

// Package auth verifies the signed identity tokens presented by websocket
// clients at handshake time.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrMissingIdentity = errors.New("token carries no identity")
)

// Identity is the user bound to a connection once its token has been verified.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Claims is the payload stored inside the token. The field names match the
// cookie issued by the account service.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier turns a raw token into an Identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify parses the token, checks its signature and expiry, and returns the
// identity it carries. Any failure is reported as ErrInvalidToken or
// ErrMissingIdentity; it never panics.
func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		return Identity{}, ErrMissingIdentity
	}
	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// IssueToken signs a token for the given identity. A zero ttl produces a token
// without expiry, like the ones handed out by the account service. A negative
// ttl yields a token that has already expired.
func IssueToken(secret []byte, identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
