package auth

import (
	"fmt"
	"time"

	"trainer-chat/domain"
	"trainer-chat/errors"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "trainer-chat"

var validate = validator.New()

// Claims carries the opaque principal id issued by the identity provider.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenValidator checks HS256 tokens signed with a shared secret.
type TokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// GenerateToken signs a token for userID. Only tests and tooling issue tokens,
// sign-in itself belongs to the identity provider.
func (v *TokenValidator) GenerateToken(userID string, ttl time.Duration) (string, error) {
	if err := ValidatePrincipalID(userID); err != nil {
		return "", err
	}
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ValidateToken returns the principal id carried by tokenString.
func (v *TokenValidator) ValidateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", errors.ErrInvalidToken
	}
	if err = ValidatePrincipalID(claims.UserID); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	return claims.UserID, nil
}

// ValidatePrincipalID rejects ids that could make two different pairs derive
// the same conversation key, or break the storage key layout.
func ValidatePrincipalID(id string) error {
	if err := validate.Var(id, domain.PrincipalIDRule); err != nil {
		return errors.InvalidArgument("principal id %q: %v", id, err)
	}
	return nil
}
