package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const allocationLockPrefix = "seating:allocate:lock:"

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// AllocationLockRepository guards allocation runs per exam with Redis SET NX.
// Without a client every acquisition succeeds and the database advisory lock
// remains the only serialization point.
type AllocationLockRepository struct {
	client *redis.Client
}

// NewAllocationLockRepository constructs the repository.
func NewAllocationLockRepository(client *redis.Client) *AllocationLockRepository {
	return &AllocationLockRepository{client: client}
}

// Acquire attempts to take the lock for the exam. ok is false when another
// holder owns it. The returned token must be passed to Release.
func (r *AllocationLockRepository) Acquire(ctx context.Context, examID string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	if r.client == nil {
		return token, true, nil
	}
	ok, err = r.client.SetNX(ctx, allocationLockPrefix+examID, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire allocation lock: %w", err)
	}
	return token, ok, nil
}

// Release frees the lock if it is still held with token.
func (r *AllocationLockRepository) Release(ctx context.Context, examID, token string) error {
	if r.client == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{allocationLockPrefix + examID}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release allocation lock: %w", err)
	}
	return nil
}
