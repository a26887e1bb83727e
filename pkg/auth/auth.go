// Package auth resolves the caller's user id from a bearer JWT.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	SigningMethodHS256 = "HS256"
	SigningMethodRS256 = "RS256"

	// DefaultTokenTTL is the lifetime of minted tokens.
	DefaultTokenTTL = 24 * time.Hour
)

var (
	ErrMissingToken  = errors.New("missing authentication token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Claims are the JWT claims recall reads. The user id is the subject.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Config configures token validation and minting.
type Config struct {
	// SigningMethod is HS256 or RS256. Defaults to HS256.
	SigningMethod string

	// Secret is the HS256 shared secret.
	Secret string

	// PublicKey is the PEM encoded RS256 verification key.
	PublicKey string

	// PrivateKey is the PEM encoded RS256 signing key, only needed to mint.
	PrivateKey string

	Issuer   string
	Audience string
}

// Validator verifies bearer tokens.
type Validator struct {
	method jwt.SigningMethod
	key    any
	parser *jwt.Parser
}

// NewValidator creates a Validator.
func NewValidator(c Config) (*Validator, error) {
	v := &Validator{}

	switch strings.ToUpper(c.SigningMethod) {
	case "", SigningMethodHS256:
		if c.Secret == "" {
			return nil, errors.New("secret required for HS256")
		}
		v.method = jwt.SigningMethodHS256
		v.key = []byte(c.Secret)
	case SigningMethodRS256:
		if c.PublicKey == "" {
			return nil, errors.New("public key required for RS256")
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(c.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		v.method = jwt.SigningMethodRS256
		v.key = key
	default:
		return nil, fmt.Errorf("unsupported signing method: %s", c.SigningMethod)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.Audience))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

// UserID validates a token, with or without the "Bearer " prefix, and
// returns its subject.
func (v *Validator) UserID(token string) (string, error) {
	claims, err := v.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Validate verifies the signature and the registered claims of a token.
func (v *Validator) Validate(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}
	return claims, nil
}

// Issuer mints tokens. The CLI uses it for development tokens.
type Issuer struct {
	method   jwt.SigningMethod
	key      any
	issuer   string
	audience string
}

// NewIssuer creates an Issuer.
func NewIssuer(c Config) (*Issuer, error) {
	i := &Issuer{issuer: c.Issuer, audience: c.Audience}

	switch strings.ToUpper(c.SigningMethod) {
	case "", SigningMethodHS256:
		if c.Secret == "" {
			return nil, errors.New("secret required for HS256")
		}
		i.method = jwt.SigningMethodHS256
		i.key = []byte(c.Secret)
	case SigningMethodRS256:
		if c.PrivateKey == "" {
			return nil, errors.New("private key required for RS256")
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		i.method = jwt.SigningMethodRS256
		i.key = key
	default:
		return nil, fmt.Errorf("unsupported signing method: %s", c.SigningMethod)
	}

	return i, nil
}

// Mint signs a token for userID valid for ttl. ttl <= 0 uses DefaultTokenTTL.
func (i *Issuer) Mint(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	return jwt.NewWithClaims(i.method, claims).SignedString(i.key)
}
