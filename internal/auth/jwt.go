// Package auth verifies the bearer credentials presented at gateway
// connect time and on HTTP calls. The core trusts the verified user id but
// re-validates league membership and budget on every state-changing call.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verifier validates bearer tokens and resolves them to user ids.
type Verifier struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	tokenTTL   time.Duration
}

// NewEphemeral generates a fresh ed25519 key pair. Tokens do not survive a
// restart; suitable for development and tests.
func NewEphemeral(tokenTTL time.Duration) (*Verifier, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return &Verifier{privateKey: priv, publicKey: pub, tokenTTL: tokenTTL}, nil
}

// NewFromFiles reads ed25519 private/public keys from disk.
func NewFromFiles(privatePath, publicPath string, tokenTTL time.Duration) (*Verifier, error) {
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return &Verifier{
		privateKey: ed25519.PrivateKey(priv),
		publicKey:  ed25519.PublicKey(pub),
		tokenTTL:   tokenTTL,
	}, nil
}

// CreateToken signs a token with "sub" = userID.
func (v *Verifier) CreateToken(userID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{"sub": userID.String()}
	if v.tokenTTL > 0 {
		claims["exp"] = time.Now().Add(v.tokenTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(v.privateKey)
}

// VerifyToken validates the token signature and returns the user id from
// the "sub" claim.
func (v *Verifier) VerifyToken(tokenString string) (uuid.UUID, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.publicKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing sub claim")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid sub claim: %w", err)
	}
	return userID, nil
}
