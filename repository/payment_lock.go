package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PaymentLocker serialises payment initiation per order.
type PaymentLocker interface {
	Acquire(ctx context.Context, orderID string) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisPaymentLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPaymentLock(client *redis.Client, ttl time.Duration) *RedisPaymentLock {
	return &RedisPaymentLock{client: client, ttl: ttl}
}

func (l *RedisPaymentLock) getKey(orderID string) string {
	return fmt.Sprintf("lock:payment:init:%s", orderID)
}

// Acquire takes the lock with SET NX and a TTL. ok is false when another
// initiation for the same order holds it. The TTL bounds a crashed holder.
func (l *RedisPaymentLock) Acquire(ctx context.Context, orderID string) (func(), bool, error) {
	key := l.getKey(orderID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
