package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the bearer token failed validation
var ErrInvalidToken = errors.New("invalid token")

// allowedSkew tolerates small clock drift between the provider and us
const allowedSkew = 5 * time.Second

// Claims are the identity-provider claims the core relies on
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// JWTConfig configures a JWTVerifier
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// JWTVerifier validates HS256 tokens issued by the identity provider
type JWTVerifier struct {
	cfg JWTConfig
	now func() time.Time
}

// NewJWTVerifier creates a verifier; the secret is required
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret is not configured")
	}
	return &JWTVerifier{cfg: cfg, now: time.Now}, nil
}

// Verify checks the signature and claims and returns the identity.
// Tokens without a verified email are rejected.
func (v *JWTVerifier) Verify(token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return v.cfg.Secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := v.validateClaims(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := &Identity{UserID: claims.Subject, Email: claims.Email}
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identity, nil
}

func (v *JWTVerifier) validateClaims(claims *Claims) error {
	if v.cfg.Issuer != "" && claims.Issuer != v.cfg.Issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if v.cfg.Audience != "" && !slices.Contains(claims.Audience, v.cfg.Audience) {
		return errors.New("audience mismatch")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil {
		return errors.New("expiry missing")
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(v.now().Add(allowedSkew)) {
		return errors.New("token issued in the future")
	}
	if !claims.EmailVerified {
		return errors.New("email not verified")
	}
	return nil
}
