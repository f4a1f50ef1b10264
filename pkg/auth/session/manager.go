package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	redislib "github.com/redis/go-redis/v9"
)

var ErrInvalidSession = errors.New("invalid session")

type sessionStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	SessionKey(userID string) string
}

// Store is the key-value surface the manager needs; *redis.Client satisfies it.
type Store interface {
	sessionStore
	sessionKeyer
}

// Manager keeps one live access token per user in Redis. Issue is
// get-or-create, so repeated logins hand back the same token until it expires
// or is revoked.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	cfg   config.JWTConfig
	now   func() time.Time
}

// SessionChecker exposes the read-only surface needed by middleware.
type SessionChecker interface {
	Validate(ctx context.Context, claims *auth.AccessTokenClaims, token string) (bool, error)
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client Store, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.TokenTTL() <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}
	return &Manager{store: client, keyer: client, cfg: cfg, now: time.Now}, nil
}

// Issue returns the user's live token, minting and storing one when absent.
func (m *Manager) Issue(ctx context.Context, payload auth.AccessTokenPayload) (string, error) {
	key := m.keyer.SessionKey(payload.UserID.String())
	existing, err := m.store.Get(ctx, key)
	switch {
	case err == nil && m.stillValid(existing):
		return existing, nil
	case err != nil && !errors.Is(err, redislib.Nil):
		return "", fmt.Errorf("read session: %w", err)
	case err == nil:
		if delErr := m.store.Del(ctx, key); delErr != nil {
			return "", fmt.Errorf("drop stale session: %w", delErr)
		}
	}

	token, err := auth.MintAccessToken(m.cfg, m.now(), payload)
	if err != nil {
		return "", err
	}
	stored, err := m.store.SetNX(ctx, key, token, m.cfg.TokenTTL())
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if stored {
		return token, nil
	}

	// A concurrent login won the race; hand back its token.
	winner, err := m.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	return winner, nil
}

// Validate reports whether token is the live session of the user in claims.
func (m *Manager) Validate(ctx context.Context, claims *auth.AccessTokenClaims, token string) (bool, error) {
	if claims == nil || strings.TrimSpace(token) == "" {
		return false, ErrInvalidSession
	}
	stored, err := m.store.Get(ctx, m.keyer.SessionKey(claims.UserID.String()))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(token)) == 1, nil
}

// Revoke drops the user's live token, forcing the next login to mint a new one.
func (m *Manager) Revoke(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	return m.store.Del(ctx, m.keyer.SessionKey(userID))
}

func (m *Manager) stillValid(token string) bool {
	_, err := auth.ParseAccessToken(m.cfg, token)
	return err == nil
}
