package cache

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSwitchLock_Exclusive(t *testing.T) {
	lock := NewLocalSwitchLock(time.Minute)
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.Acquire(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	_, ok, _ = lock.Acquire(ctx, "s2")
	assert.True(t, ok, "other sessions are independent")

	release()
	release()

	_, ok, _ = lock.Acquire(ctx, "s1")
	assert.True(t, ok, "lease is free after release")
}

func TestLocalSwitchLock_Expiry(t *testing.T) {
	lock := NewLocalSwitchLock(time.Second).(*localSwitchLock)
	now := time.Unix(1000, 0)
	lock.now = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, ok, _ := lock.Acquire(ctx, "s1")
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = lock.Acquire(ctx, "s1")
	require.True(t, ok, "expired lease can be taken over")

	staleRelease()
	_, ok, _ = lock.Acquire(ctx, "s1")
	assert.False(t, ok, "stale holder must not release the new lease")
}

func TestLocalSwitchLock_Concurrent(t *testing.T) {
	lock := NewLocalSwitchLock(time.Minute)
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := lock.Acquire(context.Background(), "s1"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRedisSwitchLock_ReleaseFailureIsLogged(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		MaxRetries: -1,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
	t.Cleanup(func() { client.Close() })
	lock := &redisSwitchLock{client: client, ttl: time.Minute}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	lock.release(lock.key("s1"), "token")

	assert.Contains(t, buf.String(), "[SwitchLock]")
	assert.Contains(t, buf.String(), "session:s1:switch")
	assert.Contains(t, buf.String(), "connection refused")
}

func TestRedisSwitchLock_AcquireError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		MaxRetries: -1,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
	t.Cleanup(func() { client.Close() })

	release, ok, err := NewSwitchLock(client, time.Minute).Acquire(context.Background(), "s1")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, release)
}
