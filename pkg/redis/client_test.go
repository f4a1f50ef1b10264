package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderdesk-backend/pkg/config"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeStore()}

	ok, err := client.SetNX(ctx, "k", "v1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "k", "v2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", value)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestOwnerCheckedMutations(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := &Client{store: store}
	lock := client.LockKey("cron", "prod")

	_, err := client.SetNX(ctx, lock, "owner-a", time.Minute)
	require.NoError(t, err)

	ok, err := client.ExpireIfValue(ctx, lock, "owner-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "foreign owner must not extend")

	ok, err = client.ExpireIfValue(ctx, lock, "owner-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, store.ttls[lock])

	ok, err = client.DeleteIfValue(ctx, lock, "owner-b")
	require.NoError(t, err)
	assert.False(t, ok, "foreign owner must not delete")

	ok, err = client.DeleteIfValue(ctx, lock, "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = client.Get(ctx, lock)
	assert.ErrorIs(t, err, redis.Nil)

	// the first run of each script falls back to EVAL, later ones use the cache
	assert.Equal(t, 2, store.evals)
	assert.Equal(t, 4, store.evalShas)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	assert.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	_, err := client.DeleteIfValue(context.Background(), "k", "v")
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "od:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "od:session:user:user-1", client.SessionKey("user-1"))
	assert.Equal(t, "od:lock:import:owner-1", client.LockKey("import", "owner-1"))
	assert.Equal(t, "od:lock:cron:stale", client.LockKey("cron", " ", "stale"))
	assert.Equal(t, "od:lock", client.LockKey())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", DB: 5, PoolSize: 7, ReadTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB, "db from the url wins")
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, time.Second, opts.ReadTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", Password: "pw", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
}

type noScriptError struct{}

func (noScriptError) Error() string { return "NOSCRIPT No matching script" }
func (noScriptError) RedisError()   {}

// fakeStore keeps strings in a map and understands only the two owner-checked
// scripts. Like a real server it caches a script once EVAL has seen it.
type fakeStore struct {
	data     map[string]string
	ttls     map[string]time.Duration
	loaded   map[string]string
	evals    int
	evalShas int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}, loaded: map[string]string{}}
}

func (f *fakeStore) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.evals++
	f.loaded[redis.NewScript(script).Hash()] = script
	return f.exec(script, keys, args)
}

func (f *fakeStore) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	f.evalShas++
	script, ok := f.loaded[sha]
	if !ok {
		return redis.NewCmdResult(nil, noScriptError{})
	}
	return f.exec(script, keys, args)
}

func (f *fakeStore) exec(script string, keys []string, args []any) *redis.Cmd {
	key, want := keys[0], fmt.Sprint(args[0])
	if f.data[key] != want {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch script {
	case deleteIfValueSrc:
		delete(f.data, key)
	case expireIfValueSrc:
		f.ttls[key] = time.Duration(args[1].(int64)) * time.Millisecond
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeStore) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeStore) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeStore) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	found := make([]bool, len(hashes))
	for i, h := range hashes {
		_, found[i] = f.loaded[h]
	}
	return redis.NewBoolSliceResult(found, nil)
}

func (f *fakeStore) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	sha := redis.NewScript(script).Hash()
	f.loaded[sha] = script
	return redis.NewStringResult(sha, nil)
}

func (f *fakeStore) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := f.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
