package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/tuition-center-api/pkg/config"
)

const redisMaxRetries = 10

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisStore keeps each collection as one JSON array under prefix+name.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(collection string) string {
	return s.prefix + collection
}

func (s *RedisStore) GetAll(ctx context.Context, collection string) (Records, error) {
	if err := Validate(collection); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.key(collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", collection, err)
	}
	return decode(raw)
}

func (s *RedisStore) SetAll(ctx context.Context, collection string, records Records) error {
	if err := Validate(collection); err != nil {
		return err
	}
	payload, err := encode(records)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(collection), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", collection, err)
	}
	return nil
}

// Update runs fn inside a WATCH/MULTI transaction, retrying when another
// writer touched the key in between.
func (s *RedisStore) Update(ctx context.Context, collection string, fn UpdateFunc) error {
	if err := Validate(collection); err != nil {
		return err
	}
	key := s.key(collection)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		current, err := decode(raw)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		payload, err := encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis update %s: %w", collection, ErrConflict)
}
