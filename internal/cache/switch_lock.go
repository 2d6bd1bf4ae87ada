package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SwitchLock serializes problem switches per session. Acquire returns ok=false
// when another switch holds the lease.
type SwitchLock interface {
	Acquire(ctx context.Context, sessionID string) (release func(), ok bool, err error)
}

type redisSwitchLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSwitchLock creates a Redis-backed lease shared by every server process.
// The TTL bounds how long a crashed holder can block further switches.
func NewSwitchLock(client *redis.Client, ttl time.Duration) SwitchLock {
	return &redisSwitchLock{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSwitchLock) key(sessionID string) string {
	return fmt.Sprintf("session:%s:switch", sessionID)
}

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *redisSwitchLock) Acquire(ctx context.Context, sessionID string) (func(), bool, error) {
	token := uuid.NewString()
	key := l.key(sessionID)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() { l.release(key, token) }
	return release, true, nil
}

// release runs after the request context may be gone. A failed release only
// delays the next switch until the TTL expires.
func (l *redisSwitchLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		log.Printf("[SwitchLock] WARNING: release of %s failed, lease expires in %s: %v", key, l.ttl, err)
	}
}

type localSwitchLock struct {
	mu      sync.Mutex
	holders map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewLocalSwitchLock creates an in-process lease table, used when Redis is
// not configured.
func NewLocalSwitchLock(ttl time.Duration) SwitchLock {
	return &localSwitchLock{
		holders: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *localSwitchLock) Acquire(_ context.Context, sessionID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, held := l.holders[sessionID]; held && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(l.ttl)
	l.holders[sessionID] = expires

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// A lease that expired and was re-acquired belongs to someone else.
			if l.holders[sessionID].Equal(expires) {
				delete(l.holders, sessionID)
			}
		})
	}
	return release, true, nil
}
