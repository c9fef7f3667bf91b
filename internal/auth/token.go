package auth

import (
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ieap-grade-sync/pkg/errors"
)

type Claims struct {
	jwtv5.RegisteredClaims
}

// ActorID reads the numeric user id from the subject claim.
func (c *Claims) ActorID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid subject %q", errors.ErrAuthenticationFailed, c.Subject)
	}
	return id, nil
}

type TokenManager struct {
	secret []byte
	issuer string
}

func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer}
}

// Issue signs an HS256 token for actorID. Used by sisctl and tests.
func (m *TokenManager) Issue(actorID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwtv5.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   strconv.FormatInt(actorID, 10),
		Issuer:    m.issuer,
		IssuedAt:  jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
	}}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *TokenManager) Parse(tokenString string) (int64, error) {
	opts := []jwtv5.ParserOption{jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(m.issuer))
	}
	token, err := jwtv5.ParseWithClaims(tokenString, &Claims{}, func(t *jwtv5.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrAuthenticationFailed, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, errors.ErrAuthenticationFailed
	}
	return claims.ActorID()
}
