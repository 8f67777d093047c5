// Package token signs and verifies the HS256 tokens used for sessions and
// registration confirmation.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Purpose tags what a token may be used for. Session tokens carry none.
type Purpose string

const (
	PurposeNone                     Purpose = ""
	PurposeRegistrationConfirmation Purpose = "REGISTRATION_CONFIRMATION"
)

// ClaimPurpose is the claim name holding the token purpose.
const ClaimPurpose = "type"

const (
	generatedKeySize = 32
	base64KeyPrefix  = "base64:"
)

// Claims are the verified contents of a token.
type Claims struct {
	Purpose Purpose `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// Codec issues and verifies tokens with a single process-wide key.
type Codec struct {
	key []byte
	now func() time.Time
}

// NewCodec builds a codec from the configured secret. An empty secret
// results in a random key that lives only as long as the process.
func NewCodec(secret string, logger logrus.FieldLogger) (*Codec, error) {
	key, err := parseKey(secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		key = make([]byte, generatedKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		if logger != nil {
			logger.Warn("JWT_SECRET is not set, using a generated signing key; tokens will not survive a restart")
		}
	}
	return &Codec{key: key, now: time.Now}, nil
}

func parseKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, nil
	}
	if encoded, ok := strings.CutPrefix(secret, base64KeyPrefix); ok {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode JWT_SECRET: %w", err)
		}
		return key, nil
	}
	return []byte(secret), nil
}

// Issue signs a token for subject that expires after ttl.
func (c *Codec) Issue(subject string, purpose Purpose, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", apierr.InvalidInput("Token subject must not be blank", nil)
	}

	now := c.now()
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", apierr.Internal("", "failed to sign token", err)
	}
	return signed, nil
}

// DecodeAndVerify checks signature and expiry and returns the claims.
func (c *Codec) DecodeAndVerify(tokenString string) (Claims, error) {
	var claims Claims
	if _, err := c.parse(tokenString, &claims); err != nil {
		return Claims{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, apierr.InvalidToken("Invalid token provided", "token has no subject")
	}
	return claims, nil
}

// GetClaim returns a single claim as a string. The token is fully verified
// first; a missing claim yields an empty string.
func (c *Codec) GetClaim(tokenString, name string) (string, error) {
	claims := jwt.MapClaims{}
	if _, err := c.parse(tokenString, claims); err != nil {
		return "", err
	}
	value, ok := claims[name]
	if !ok || value == nil {
		return "", nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprint(value), nil
}

func (c *Codec) parse(tokenString string, claims jwt.Claims) (*jwt.Token, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return c.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			debug := "Token expired"
			if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
				debug = "Token expired at " + exp.Time.UTC().Format(time.RFC3339)
			}
			return nil, apierr.ExpiredToken("Token has expired", debug)
		}
		return nil, apierr.InvalidToken("Invalid token provided", err.Error())
	}
	if !token.Valid {
		return nil, apierr.InvalidToken("Invalid token provided", "token is not valid")
	}
	return token, nil
}
