// Package token handles local inspection of the JWTs issued by the
// backend identity provider. Tokens are decoded without signature
// verification; trust is delegated to the backend on every
// authenticated request.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned when a token cannot be decoded at all.
var ErrMalformed = errors.New("malformed token")

// Set is the triple of tokens issued on login. Each is an opaque signed
// string with an embedded expiry claim.
type Set struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

// Expired reports whether any held token in the set is past its expiry.
// The refresh token is excluded: identity providers commonly issue it
// without an exp claim and enforce its lifetime server side.
func (s *Set) Expired() bool {
	return Expired(s.AccessToken) || Expired(s.IDToken)
}

// Claims is the subset of identity token claims projected into a user.
type Claims struct {
	jwt.RegisteredClaims

	Sub        string   `json:"sub"`
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	Username   string   `json:"cognito:username"`
	Groups     []string `json:"cognito:groups"`
	TokenUse   string   `json:"token_use"`
	ClientID   string   `json:"client_id"`
}

// Expired reports whether the token's exp claim (epoch seconds) is in
// the past. Any decode failure, including a missing exp claim, counts
// as expired: an unparseable token must log the user out rather than
// be trusted.
func Expired(raw string) bool {
	parser := jwt.NewParser()

	var claims jwt.MapClaims
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}

	return exp.Before(time.Now())
}

// Decode extracts the identity claims from a token without verifying
// its signature. This never calls the network.
func Decode(raw string) (*Claims, error) {
	parser := jwt.NewParser()

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, ErrMalformed
	}

	return claims, nil
}
