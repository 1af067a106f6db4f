package utils

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidToken  = errors.New("invalid authentication token")
	ErrTokenExpired  = errors.New("token is expired")
	ErrTokenNoExpiry = errors.New("token does not expire")
	ErrTokenIssuer   = errors.New("token was not issued by a trusted issuer")
)

// TokenVerifier authenticates bearer tokens minted by the SwiftFiat identity
// service. Settlement only verifies; it never issues tokens.
type TokenVerifier struct {
	signingKey []byte
	issuer     string
}

func NewTokenVerifier(config *Config) *TokenVerifier {
	return &TokenVerifier{
		signingKey: []byte(config.SigningKey),
		issuer:     config.TokenIssuer,
	}
}

// AccessClaims is the payload of a SwiftFiat access token. Expiry and issuer
// travel in the registered claims.
type AccessClaims struct {
	jwt.StandardClaims
	UserID int64  `json:"user_id"`
	Role   string `json:"user_role"`
}

func (v *TokenVerifier) Verify(tokenString string) (Principal, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.ExpiresAt == 0 {
		return Principal{}, ErrTokenNoExpiry
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Principal{}, ErrTokenIssuer
	}
	if claims.UserID <= 0 {
		return Principal{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}
