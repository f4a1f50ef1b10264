package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/internal/users"
	pkgAuth "github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/auth/session"
	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox"
)

var (
	testJWT       = config.JWTConfig{Secret: "secret", Issuer: "orderdesk", ExpirationMinutes: 60}
	testPasswords = config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32, MinLength: 8, ResetTokenTTL: time.Hour}
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) SessionKey(userID string) string { return "od:session:" + userID }

type harness struct {
	svc      Service
	db       *gorm.DB
	users    *users.Repository
	sessions *session.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	manager, err := session.NewManager(&memoryStore{data: map[string]string{}}, testJWT)
	require.NoError(t, err)
	repo := users.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		DB:             client,
		Users:          repo,
		Sessions:       manager,
		Outbox:         outbox.NewService(outbox.NewRepository(conn), nil),
		PasswordConfig: testPasswords,
	})
	require.NoError(t, err)
	return &harness{svc: svc, db: conn, users: repo, sessions: manager}
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		FirstName: "Anna",
		LastName:  "Smirnova",
		Email:     "Anna@Example.com",
		Password:  "correct-Horse-42",
		Company:   "Acme",
		Position:  "Procurement",
	}
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Count(&n).Error)
	return n
}

// eventsOf decodes the data of every outbox event with the given type.
func eventsOf[T any](t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) []T {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, db.Where("event_type = ?", eventType).Order("created_at").Find(&rows).Error)
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var envelope outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload, &envelope))
		var data T
		require.NoError(t, json.Unmarshal(envelope.Data, &data))
		out = append(out, data)
	}
	return out
}

// register creates and confirms an account, returning its email.
func (h *harness) register(t *testing.T, req RegisterRequest) *models.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.svc.Register(ctx, req))
	user, err := h.users.FindByEmail(ctx, normalizeEmail(req.Email))
	require.NoError(t, err)
	var token models.ConfirmEmailToken
	require.NoError(t, h.db.Where("user_id = ?", user.ID).First(&token).Error)
	require.NoError(t, h.svc.ConfirmEmail(ctx, ConfirmEmailRequest{Email: req.Email, Token: token.Key}))
	return user
}

func directToken(t *testing.T, h *harness, user *models.User) string {
	t.Helper()
	token, err := h.sessions.Issue(context.Background(), pkgAuth.AccessTokenPayload{UserID: user.ID, UserType: user.Type})
	require.NoError(t, err)
	return token
}
