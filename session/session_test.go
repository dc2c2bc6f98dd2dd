package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/codeagent/core"
)

var (
	_ core.SessionStore = (*InMemoryStore)(nil)
	_ core.SessionStore = (*RedisStore)(nil)
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.Load(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)

	data := []byte(`{"steps":[]}`)
	require.NoError(t, s.Save(ctx, "s1", data))
	data[0] = 'X'

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, `{"steps":[]}`, string(got))

	got[0] = 'Y'
	again, _ := s.Load(ctx, "s1")
	assert.Equal(t, `{"steps":[]}`, string(again))

	require.NoError(t, s.Save(ctx, "s0", []byte("x")))
	assert.Equal(t, []string{"s0", "s1"}, s.IDs())

	require.NoError(t, s.Delete(ctx, "s1"))
	require.NoError(t, s.Delete(ctx, "missing"))
	_, err = s.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Save(ctx, "shared", []byte("v")))
			_, _ = s.Load(ctx, "shared")
		}()
	}
	wg.Wait()

	got, err := s.Load(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

type fakeRedis struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	s := NewRedisStore(fake, func(o *RedisOptions) {
		o.KeyPrefix = "test:"
		o.TTL = time.Hour
	})

	_, err := s.Load(ctx, "abc")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "abc", []byte("snapshot")))
	assert.Equal(t, "snapshot", fake.data["test:abc"])
	assert.Equal(t, time.Hour, fake.ttl["test:abc"])

	got, err := s.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("snapshot"), got)

	require.NoError(t, s.Delete(ctx, "abc"))
	assert.Empty(t, fake.data)
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	s := NewRedisStore(fake)

	_, err := s.Load(ctx, "abc")
	assert.ErrorContains(t, err, "redis get session abc: connection refused")
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.ErrorContains(t, s.Save(ctx, "abc", nil), "connection refused")
	assert.ErrorContains(t, s.Delete(ctx, "abc"), "connection refused")
}

func TestNewRedisStoreFromURL(t *testing.T) {
	s, client, err := NewRedisStoreFromURL("redis://user:pw@localhost:6380/2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, "localhost:6380", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
	assert.Equal(t, "pw", client.Options().Password)
	assert.Equal(t, "codeagent:session:abc", s.key("abc"))

	_, _, err = NewRedisStoreFromURL("http://localhost")
	assert.Error(t, err)
}
