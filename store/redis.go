package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	reportsync "github.com/AnandSundar/go-reportsync"
	"github.com/AnandSundar/go-reportsync/report"
)

const (
	// DefaultRedisPrefix namespaces entry keys
	DefaultRedisPrefix = "reportsync:"
	// DefaultRedisTTL bounds how long an entry outlives its last write
	DefaultRedisTTL = time.Hour

	scanBatch   = 100
	claimPrefix = "lock:"
)

// releaseScript deletes a claim only if it still holds the caller's value,
// so an expired claim taken over by another request is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is a Redis-backed implementation of reportsync.Store and
// reportsync.Claimer
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL sets the entry TTL. Zero keeps entries until Reset.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    DefaultRedisTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// record is the JSON form of an entry. Errors keep only their message and
// HTTP status and come back as *reportsync.RemoteError.
type record struct {
	Status      reportsync.Status `json:"status"`
	Data        *report.Report    `json:"data,omitempty"`
	Error       *errorRecord      `json:"error,omitempty"`
	RequestedAt time.Time         `json:"requested_at"`
	SettledAt   time.Time         `json:"settled_at"`
	Token       uint64            `json:"token"`
}

type errorRecord struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

func toRecord(e *reportsync.Entry) record {
	r := record{
		Status:      e.Status,
		Data:        e.Data,
		RequestedAt: e.RequestedAt,
		SettledAt:   e.SettledAt,
		Token:       e.Token,
	}
	if e.Err != nil {
		r.Error = &errorRecord{Message: e.Err.Error()}
		var status interface{ HTTPStatus() int }
		if errors.As(e.Err, &status) {
			r.Error.StatusCode = status.HTTPStatus()
		}
	}
	return r
}

func (r record) entry() *reportsync.Entry {
	e := &reportsync.Entry{
		Status:      r.Status,
		Data:        r.Data,
		RequestedAt: r.RequestedAt,
		SettledAt:   r.SettledAt,
		Token:       r.Token,
	}
	if r.Error != nil {
		e.Err = &reportsync.RemoteError{Message: r.Error.Message, StatusCode: r.Error.StatusCode}
	}
	return e
}

func (s *RedisStore) key(key reportsync.Key) string {
	return s.prefix + key.String()
}

// Get retrieves an entry from Redis
func (s *RedisStore) Get(ctx context.Context, key reportsync.Key) (*reportsync.Entry, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, reportsync.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	return r.entry(), nil
}

// Put stores an entry in Redis with the store TTL
func (s *RedisStore) Put(ctx context.Context, key reportsync.Key, entry *reportsync.Entry) error {
	data, err := json.Marshal(toRecord(entry))
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	return s.client.Set(ctx, s.key(key), data, s.ttl).Err()
}

// Reset deletes every entry and claim under the store prefix. Requests that
// were in flight settle into nothing and their release is a no-op, so a
// fetch issued after Reset claims the key again.
func (s *RedisStore) Reset(ctx context.Context) error {
	if err := s.deleteMatching(ctx, s.prefix+"*"); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	if err := s.deleteMatching(ctx, claimPrefix+s.prefix+"*"); err != nil {
		return fmt.Errorf("delete claims: %w", err)
	}
	return nil
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Claim acquires a distributed claim on key using SET NX
func (s *RedisStore) Claim(ctx context.Context, key reportsync.Key, ttl time.Duration) (func(), error) {
	lockKey := claimPrefix + s.key(key)
	value := uuid.NewString()

	acquired, err := s.client.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, err
	}

	if !acquired {
		return nil, reportsync.ErrRequestInProgress
	}

	release := func() {
		releaseScript.Run(context.WithoutCancel(ctx), s.client, []string{lockKey}, value)
	}

	return release, nil
}
