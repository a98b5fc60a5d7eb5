package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/models"
)

// DefaultLockKeyPrefix matches the keyspace the core services publish
// advisory locks under.
const DefaultLockKeyPrefix = "lims:lock"

// LockRepository reads advisory lock state straight from the Redis
// keyspace the core services maintain. It is an alternative to polling
// the lock service over HTTP and never writes: a missing key simply
// means unlocked.
type LockRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewLockRepository constructs the repository. An empty prefix falls
// back to DefaultLockKeyPrefix.
func NewLockRepository(client *redis.Client, prefix string, logger *zap.Logger) *LockRepository {
	if prefix == "" {
		prefix = DefaultLockKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockRepository{client: client, prefix: prefix, logger: logger}
}

// lockValue is the JSON shape the lock service stores. Older deployments
// store the bare holder token instead; both read the same way.
type lockValue struct {
	Locked bool   `json:"locked"`
	Holder string `json:"holder"`
}

// Fetch satisfies the lock watcher's Source contract.
func (r *LockRepository) Fetch(ctx context.Context, kind, id string) (models.LockState, error) {
	if r.client == nil {
		return models.LockState{}, nil
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, kind, id)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return models.LockState{}, nil
		}
		return models.LockState{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	if len(raw) > 0 && raw[0] == '{' {
		var value lockValue
		if err := json.Unmarshal(raw, &value); err != nil {
			return models.LockState{}, fmt.Errorf("decode lock value %s: %w", key, err)
		}
		return models.LockState{Locked: value.Locked, Holder: value.Holder}, nil
	}
	if len(raw) > 0 {
		return models.LockState{Locked: true, Holder: string(raw)}, nil
	}
	return models.LockState{}, nil
}
