package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tmercier/keepsake/pkg/auth"
)

const (
	redisKeyPrefix   = "keepsake:token:"
	redisIDKeyPrefix = "keepsake:token-id:"
)

// RedisStore keeps auth records in Redis. Records carry a TTL of the
// session expiry plus the retention window, so Redis expires burned
// sessions on its own and PurgeExpired is a no-op.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// OpenRedis connects to Redis using a redis:// URL.
func OpenRedis(url string, retention time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, retention), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RedisStore{client: client, retention: retention}
}

// Client exposes the underlying client for health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// redisRecord is the storage encoding of auth.Record. The public type
// hides RandomPasswordHash from JSON so it can never leak through an API
// response; the store itself must persist it.
type redisRecord struct {
	ID                 string    `json:"id"`
	Credential         string    `json:"credential"`
	RandomPasswordHash string    `json:"random_password_hash"`
	ExpirationDate     time.Time `json:"expiration_date"`
	IsExpired          bool      `json:"is_expired"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toRedisRecord(record *auth.Record) *redisRecord {
	return &redisRecord{
		ID:                 record.ID,
		Credential:         record.Credential,
		RandomPasswordHash: record.RandomPasswordHash,
		ExpirationDate:     record.ExpirationDate,
		IsExpired:          record.IsExpired,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
}

func (r *redisRecord) toAuthRecord() *auth.Record {
	return &auth.Record{
		ID:                 r.ID,
		Credential:         r.Credential,
		RandomPasswordHash: r.RandomPasswordHash,
		ExpirationDate:     r.ExpirationDate,
		IsExpired:          r.IsExpired,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// GetToken returns the record for the credential, or (nil, nil) when none
// exists.
func (s *RedisStore) GetToken(ctx context.Context, credential string) (*auth.Record, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+credential).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}
	var record redisRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to decode auth token: %w", err)
	}
	return record.toAuthRecord(), nil
}

// SaveToken creates or replaces the record for its credential.
func (s *RedisStore) SaveToken(ctx context.Context, record *auth.Record) error {
	return s.write(ctx, record)
}

// UpdateToken replaces the stored record; Redis keys are addressed by
// credential, so the write is a single atomic SET.
func (s *RedisStore) UpdateToken(ctx context.Context, record *auth.Record) error {
	return s.write(ctx, record)
}

func (s *RedisStore) write(ctx context.Context, record *auth.Record) error {
	data, err := json.Marshal(toRedisRecord(record))
	if err != nil {
		return fmt.Errorf("failed to encode auth token: %w", err)
	}
	ttl := time.Until(record.ExpirationDate) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+record.Credential, data, ttl)
	pipe.Set(ctx, redisIDKeyPrefix+record.ID, record.Credential, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	return nil
}

// DeleteToken removes the record with the given ID.
func (s *RedisStore) DeleteToken(ctx context.Context, id string) error {
	credential, err := s.client.Get(ctx, redisIDKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve auth token id: %w", err)
	}
	if err := s.client.Del(ctx, redisKeyPrefix+credential, redisIDKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete auth token: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op: record TTLs already cover retention.
func (s *RedisStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}
