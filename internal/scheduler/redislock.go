package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLock is a Locker backed by SET NX with an expiry. The expiry must
// exceed the longest expected run.
type RedisLock struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

func NewRedisLock(rdb redis.UniversalClient, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLock) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	unlock := func() {
		releaseScript.Run(context.Background(), l.rdb, []string{l.key}, token)
	}
	return unlock, true, nil
}
