// Package inflight keeps a chat to one running pipeline at a time.
package inflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	logx "github.com/wapuda/autoshorts/internal/logs"
)

// Locker grants one holder per chat. Release is a no-op for chats that are
// not held. Refresh extends a held lock and reports false when requestID no
// longer holds it.
type Locker interface {
	Acquire(ctx context.Context, chatID int64, requestID string) (bool, error)
	Refresh(ctx context.Context, chatID int64, requestID string) (bool, error)
	Release(ctx context.Context, chatID int64, requestID string) error
}

// Hold refreshes the lock every interval until ctx is done. A pipeline may
// outlive any fixed TTL, so the holder keeps its key alive for as long as it
// runs.
func Hold(ctx context.Context, l Locker, chatID int64, requestID string, every time.Duration) {
	if every <= 0 {
		return
	}
	log := logx.FromCtx(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ok, err := l.Refresh(ctx, chatID, requestID)
			switch {
			case err != nil && ctx.Err() == nil:
				log.Warn().Err(err).Int64("chat_id", chatID).Msg("in-flight lock refresh failed")
			case err == nil && !ok:
				log.Warn().Int64("chat_id", chatID).Str("rid", requestID).Msg("in-flight lock lost")
				return
			}
		}
	}
}

// Memory is a process-local Locker.
type Memory struct {
	mu   sync.Mutex
	held map[int64]string
}

func NewMemory() *Memory {
	return &Memory{held: make(map[int64]string)}
}

func (m *Memory) Acquire(_ context.Context, chatID int64, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[chatID]; ok {
		return false, nil
	}
	m.held[chatID] = requestID
	return true, nil
}

func (m *Memory) Refresh(_ context.Context, chatID int64, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[chatID] == requestID, nil
}

func (m *Memory) Release(_ context.Context, chatID int64, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[chatID] == requestID {
		delete(m.held, chatID)
	}
	return nil
}

// Redis shares the lock between bot replicas. Keys expire after ttl so a
// crashed replica cannot wedge a chat forever.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func keyInflight(chatID int64) string { return fmt.Sprintf("inflight:%d", chatID) }

func (r *Redis) Acquire(ctx context.Context, chatID int64, requestID string) (bool, error) {
	return r.rdb.SetNX(ctx, keyInflight(chatID), requestID, r.ttl).Result()
}

// refreshScript resets the TTL only while the key still names this request.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (r *Redis) Refresh(ctx context.Context, chatID int64, requestID string) (bool, error) {
	n, err := refreshScript.Run(ctx, r.rdb, []string{keyInflight(chatID)}, requestID, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// releaseScript deletes the key only while it still names this request.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *Redis) Release(ctx context.Context, chatID int64, requestID string) error {
	return releaseScript.Run(ctx, r.rdb, []string{keyInflight(chatID)}, requestID).Err()
}
