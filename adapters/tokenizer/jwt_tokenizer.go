package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

const AudienceSession = "session:access"

// JWTTokenizer implements the Tokenizer interface using HMAC-signed JWTs
type JWTTokenizer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(secret string, ttl time.Duration, opts ...Option) ports.Tokenizer {
	j := &JWTTokenizer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Issue signs a session token binding userID to wallet
func (j *JWTTokenizer) Issue(userID, wallet string) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Wallet: wallet,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// Validate parses tokenStr and returns the identity it carries
func (j *JWTTokenizer) Validate(tokenStr string) (core.Identity, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithAudience(AudienceSession),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return core.Identity{}, classify(err)
	}

	if !token.Valid {
		return core.Identity{}, core.ErrInvalidToken
	}
	if claims.Subject == "" || core.ValidateWalletAddress(claims.Wallet) != nil {
		return core.Identity{}, fmt.Errorf("%w: %w", core.ErrInvalidToken, core.ErrTokenMalformed)
	}

	identity := core.Identity{
		UserID:        claims.Subject,
		WalletAddress: claims.Wallet,
		ExpiresAt:     claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}

	return identity, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", core.ErrInvalidToken, core.ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", core.ErrInvalidToken, core.ErrTokenSignatureInvalid)
	default:
		return fmt.Errorf("%w: %w", core.ErrInvalidToken, core.ErrTokenMalformed)
	}
}
