package tokens

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func AccessClaimsFromToken(TokenStr string, AccessSecret []byte) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(TokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return AccessSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &claims, nil
}

// NewAccessToken signs an HS256 access token for subject with the given role.
func NewAccessToken(secret []byte, subject, role string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{Role: role, RegisteredClaims: claims})
	return tkn.SignedString(secret)
}
