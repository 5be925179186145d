// Package auth models the authenticated identity consumed by the
// authorization core.
//
// The core never issues credentials. An external identity provider signs
// an HS256 JWT carrying the subject, the email and an email_verified claim;
// JWTVerifier checks it and yields an Identity:
//
//	verifier, err := auth.NewJWTVerifier(auth.JWTConfig{
//		Secret:   []byte(cfg.Auth.JWTSecret),
//		Issuer:   cfg.Auth.Issuer,
//		Audience: cfg.Auth.Audience,
//	})
//	identity, err := verifier.Verify(bearer)
//
// Any validation failure wraps ErrInvalidToken.
package auth
