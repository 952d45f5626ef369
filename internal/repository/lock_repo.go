package repository

import (
	"context"
	"fmt"
	"time"

	"SocialScheduler/internal/interfaces"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "scheduler:lock:org:"

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLock 基于 SET NX PX 的组织级排期锁
func NewRedisLock(client redis.UniversalClient, ttl time.Duration) interfaces.SchedulingLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisLock{client: client, ttl: ttl}
}

func (l *redisLock) Acquire(ctx context.Context, organizationID string) (interfaces.ReleaseFunc, error) {
	key := lockKeyPrefix + organizationID
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("获取排期锁失败: %w, org: %s", err, organizationID)
	}
	if !ok {
		return nil, interfaces.ErrLockHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("释放排期锁失败: %w, org: %s", err, organizationID)
		}
		return nil
	}, nil
}

type noopLock struct{}

// NewNoopLock 未配置 Redis 时使用，不做互斥
func NewNoopLock() interfaces.SchedulingLock {
	return noopLock{}
}

func (noopLock) Acquire(context.Context, string) (interfaces.ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}
