package gate

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the acting authority extracted from a verified token.
type Identity struct {
	Subject string
}

// TokenVerifierConfig configures manual-override token verification.
type TokenVerifierConfig struct {
	// Key is the HMAC signing key shared with the issuing authority.
	Key []byte

	// Issuer, when set, is the required iss claim.
	Issuer string

	// Audience, when set, is the required aud claim.
	Audience string
}

// TokenVerifier validates the signed tokens that authorize manual
// hold/release overrides. Only HMAC-signed tokens are accepted.
type TokenVerifier struct {
	config TokenVerifierConfig
}

// NewTokenVerifier creates a token verifier.
func NewTokenVerifier(config TokenVerifierConfig) *TokenVerifier {
	return &TokenVerifier{config: config}
}

// Verify parses and validates a token and returns the acting identity.
func (v *TokenVerifier) Verify(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return v.config.Key, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{Subject: subject}, nil
}
