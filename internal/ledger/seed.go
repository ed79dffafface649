package ledger

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// SeedStore persists the transaction id watermark across restarts.
type SeedStore interface {
	Load(ctx context.Context) (int, error)
	Save(ctx context.Context, id int) error
}

// MemorySeedStore keeps the watermark in memory only. Ids remain unique
// within a single process lifetime; used when redis is not configured.
type MemorySeedStore struct {
	mu        sync.Mutex
	watermark int
}

// NewMemorySeedStore returns an empty in-memory store.
func NewMemorySeedStore() *MemorySeedStore {
	return &MemorySeedStore{}
}

// Load returns the current watermark.
func (s *MemorySeedStore) Load(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark, nil
}

// Save records the watermark.
func (s *MemorySeedStore) Save(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id > s.watermark {
		s.watermark = id
	}
	return nil
}

const redisSeedKey = "chargecore:transaction_id"

// RedisSeedStore persists the watermark in redis so ids survive restarts.
type RedisSeedStore struct {
	client *redis.Client
}

// NewRedisSeedStore wraps a connected client.
func NewRedisSeedStore(client *redis.Client) *RedisSeedStore {
	return &RedisSeedStore{client: client}
}

// Load reads the persisted watermark; a missing key yields zero.
func (s *RedisSeedStore) Load(ctx context.Context) (int, error) {
	val, err := s.client.Get(ctx, redisSeedKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	watermark, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	return watermark, nil
}

// Save stores the watermark. Values only move forward.
func (s *RedisSeedStore) Save(ctx context.Context, id int) error {
	current, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if id <= current {
		return nil
	}
	return s.client.Set(ctx, redisSeedKey, strconv.Itoa(id), 0).Err()
}
