package authz

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskterm/taskterm/pkg/config"
)

const tokenIssuer = "taskterm"

// TokenService mints and validates delegation tokens: signed, time-limited
// grants bound to exactly one task ID. A valid token authorizes its bearer
// on that task regardless of ownership or group membership.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// tokenClaims binds a token to a task and records who minted it.
type tokenClaims struct {
	jwt.RegisteredClaims
	DelegatedBy string `json:"delegated_by,omitempty"`
}

// NewTokenService creates a TokenService, or nil when no signing secret
// is configured (which disables the access-token rule).
func NewTokenService(cfg config.DelegationConfig) *TokenService {
	if cfg.Secret == "" {
		return nil
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// Issue mints a token granting access to taskID, recording the delegating
// principal.
func (s *TokenService) Issue(taskID, delegatedBy string) (string, error) {
	now := s.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   taskID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		DelegatedBy: delegatedBy,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign delegation token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, expiry and that the token was minted for the
// given task.
func (s *TokenService) Validate(tokenString, taskID string) error {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return fmt.Errorf("parse delegation token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid delegation token")
	}
	if claims.Subject != taskID {
		return fmt.Errorf("delegation token is for task %s, not %s", claims.Subject, taskID)
	}
	return nil
}
