package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// ErrBadCredentials is returned when an operator key matches neither configured key.
var ErrBadCredentials = errors.New("invalid operator credentials")

// Nonce is a signed, expiring token authorising scan submissions.
type Nonce struct {
	Token     string
	ExpiresAt time.Time
	IsAdmin   bool
}

// Claims represents the nonce payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the nonce may switch scan modes and read reports.
func (c Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// Issuer signs nonces for operators.
type Issuer struct {
	Name        string
	Key         string
	TTL         time.Duration
	OperatorKey string
	AdminKey    string
}

// Login checks an operator key and issues a nonce with the matching role.
func (i Issuer) Login(operatorID, key string) (Nonce, error) {
	if operatorID == "" || key == "" {
		return Nonce{}, ErrBadCredentials
	}
	switch {
	case i.AdminKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(i.AdminKey)) == 1:
		return Issue(operatorID, RoleAdmin, i.Name, i.Key, i.TTL)
	case i.OperatorKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(i.OperatorKey)) == 1:
		return Issue(operatorID, RoleOperator, i.Name, i.Key, i.TTL)
	}
	return Nonce{}, ErrBadCredentials
}

// Issue signs a nonce for subject with role.
func Issue(subject, role, issuer, key string, ttl time.Duration) (Nonce, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Nonce{}, err
	}
	return Nonce{Token: token, ExpiresAt: exp, IsAdmin: role == RoleAdmin}, nil
}

// Parse validates a nonce and returns its claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
