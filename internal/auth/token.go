package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Meet/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	scopeAccess = "access"
	scopeRoom   = "room"
)

// tokenClaims carries the subject plus a scope separating identity tokens
// from room credentials, so one cannot stand in for the other.
type tokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies the HS256 tokens issued by the external signer.
// It implements both core.AccessTokenVerifier and core.RoomTokenVerifier.
type TokenVerifier struct {
	key []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{key: []byte(secret)}
}

func (v *TokenVerifier) VerifyAccessToken(token string) (domain.UserID, error) {
	sub, err := v.verify(token, scopeAccess)
	return domain.UserID(sub), err
}

func (v *TokenVerifier) VerifyRoomToken(token string) (domain.ParticipantID, error) {
	sub, err := v.verify(token, scopeRoom)
	return domain.ParticipantID(sub), err
}

func (v *TokenVerifier) verify(tokenString, wantScope string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.Scope != wantScope || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// SignAccessToken mirrors the external signer; used by local setups and tests.
func SignAccessToken(secret string, userID domain.UserID, ttl time.Duration) (string, error) {
	return sign(secret, string(userID), scopeAccess, ttl)
}

// SignRoomToken mirrors the external signer; used by local setups and tests.
func SignRoomToken(secret string, pid domain.ParticipantID, ttl time.Duration) (string, error) {
	return sign(secret, string(pid), scopeRoom, ttl)
}

func sign(secret, subject, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &tokenClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
