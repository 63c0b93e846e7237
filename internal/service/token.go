package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"patchdb/internal/cache"
	"patchdb/internal/config"
	"patchdb/internal/middleware"
	"patchdb/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Authentication methods recorded in the "method" claim.
const (
	MethodPassword = "password"
)

// TokenClaims is the JWT payload issued to clients.
type TokenClaims struct {
	UserID string          `json:"userId"`
	Method string          `json:"method"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies RS256 access tokens.
type TokenIssuer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
	now        func() time.Time
}

var _ middleware.TokenVerifier = (*TokenIssuer)(nil)

// NewTokenIssuer builds an issuer from a key pair.
func NewTokenIssuer(key *rsa.PrivateKey, issuer, audience string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenIssuer{
		privateKey: key,
		publicKey:  &key.PublicKey,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		now:        time.Now,
	}
}

// NewTokenIssuerFromConfig loads the configured certificate and key. Outside
// production, missing files fall back to an ephemeral key, so tokens do not
// survive a restart.
func NewTokenIssuerFromConfig(cfg *config.Config) (*TokenIssuer, error) {
	if cfg.JWTCertFile == "" || cfg.JWTKeyFile == "" {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_CERT_FILE and JWT_KEY_FILE are required in production")
		}
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral signing key: %w", err)
		}
		middleware.Logger.Warn("Using an ephemeral JWT signing key; tokens will not survive a restart")
		return NewTokenIssuer(key, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL()), nil
	}

	key, err := LoadTokenKeys(cfg.JWTCertFile, cfg.JWTKeyFile)
	if err != nil {
		return nil, err
	}
	return NewTokenIssuer(key, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL()), nil
}

// LoadTokenKeys reads an X.509 certificate and its RSA private key (both PEM)
// and checks that they belong together.
func LoadTokenKeys(certFile, keyFile string) (*rsa.PrivateKey, error) {
	certPEM, err := os.ReadFile(certFile) // #nosec G304: path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile) // #nosec G304: path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParseTokenKeys(certPEM, keyPEM)
}

// ParseTokenKeys is LoadTokenKeys over in-memory PEM data.
func ParseTokenKeys(certPEM, keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("certificate PEM block not found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	certKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not carry an RSA public key")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if !key.PublicKey.Equal(certKey) {
		return nil, errors.New("private key does not match certificate")
	}
	return key, nil
}

// Issue signs a token for user.
func (t *TokenIssuer) Issue(user *models.User, method string) (string, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)
	claims := TokenClaims{
		UserID: user.ID.String(),
		Method: method,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{t.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(t.privateKey)
	if err != nil {
		return "", time.Time{}, models.NewInternalError(err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a token and checks the revocation list.
func (t *TokenIssuer) Verify(ctx context.Context, raw string) (*middleware.Identity, error) {
	var claims TokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return t.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, models.NewUnauthorizedError("Invalid token subject")
	}

	if claims.ID != "" {
		revoked, err := cache.HasFlag(ctx, cache.RevokedTokenKey(claims.ID))
		if err != nil {
			middleware.Logger.WarnContext(ctx, "Token revocation lookup failed", "error", err)
		} else if revoked {
			return nil, models.NewUnauthorizedError("Token has been revoked")
		}
	}

	return &middleware.Identity{
		UserID:    userID,
		Role:      claims.Role,
		Method:    claims.Method,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke blacklists the token until it would have expired anyway.
func (t *TokenIssuer) Revoke(ctx context.Context, identity *middleware.Identity) error {
	if identity == nil || identity.TokenID == "" {
		return nil
	}
	ttl := time.Until(identity.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return cache.SetFlag(ctx, cache.RevokedTokenKey(identity.TokenID), ttl)
}
