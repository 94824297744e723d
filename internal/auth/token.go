package auth

import (
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrTokenInvalid    = errors.New("auth: access token invalid")
	ErrTokenExpired    = errors.New("auth: access token expired")
	ErrWrongTokenType  = errors.New("auth: not an access token")
	ErrForbidden       = errors.New("auth: forbidden")
)

const tokenTypeAccess = "access"

// Claims is the payload of an access token issued by the account service.
type Claims struct {
	UserID   string `json:"_id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	UserType string `json:"user_type"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret key is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func (v *Verifier) Verify(raw string) (*Identity, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return v.secret, nil })
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	// jwt/v4 only checks exp when present.
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrTokenInvalid)
	}
	if claims.Type != tokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	role, ok := ParseRole(claims.UserType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown user type %q", ErrTokenInvalid, claims.UserType)
	}
	return &Identity{ID: claims.UserID, Name: claims.FullName, Email: claims.Email, Role: role}, nil
}

// Sign issues a token for tests and local tooling.
func Sign(secret string, c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
