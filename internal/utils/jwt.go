// Package utils holds token and password helpers for dashboard accounts.
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/busbooking/internal/model"
)

const (
	issuer = "busbooking"
	// refreshBytes of entropy, hex encoded to twice as many characters.
	refreshBytes = 48
)

// ErrInvalidToken is returned by ParseSessionToken for any token that does
// not verify or lacks the expected claims.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken is a signed session JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is the raw refresh token handed to the browser. Only its
// hash is stored.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

type sessionClaims struct {
	Role string `json:"role"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// NewSessionToken signs an HS256 session for s valid for ttlMin minutes.
func NewSessionToken(secret string, s model.Session, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := sessionClaims{
		Role: s.Role,
		Name: s.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(s.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken verifies raw and rebuilds the session it was issued for.
func ParseSessionToken(secret, raw string) (model.Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Session{}, ErrInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return model.Session{}, ErrInvalidToken
	}
	return model.Session{UserID: id, Username: claims.Name, Role: claims.Role}, nil
}

// NewRefreshToken returns a random refresh token valid for ttlDays.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	buf := make([]byte, refreshBytes)
	if _, err := rand.Read(buf); err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: hex.EncodeToString(buf),
		Exp: time.Now().UTC().AddDate(0, 0, ttlDays),
	}, nil
}

// HashRefreshToken is the hex SHA-256 under which a refresh token is stored.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
