package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Префикс ключей токенов в Redis.
const redisKeyPrefix = "condo:session:"

// defaultRedisTimeout — таймаут ping при подключении и readiness-проверке.
const defaultRedisTimeout = 5 * time.Second

// RedisConfig — параметры подключения к Redis.
type RedisConfig struct {
	Addr    string
	DB      int
	Timeout time.Duration
}

// ConnectRedis создаёт клиент Redis и проверяет связь ping.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// Redis — хранилище токенов в Redis с истечением через EXPIRE.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis создаёт хранилище поверх клиента Redis.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

// Load возвращает токен сессии или ErrNotFound.
func (r *Redis) Load(ctx context.Context, sessionID string) (string, error) {
	token, err := r.client.Get(ctx, redisKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return token, nil
}

// Save сохраняет токен с TTL (SET EX).
func (r *Redis) Save(ctx context.Context, sessionID, token string) error {
	if err := r.client.Set(ctx, redisKey(sessionID), token, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete удаляет токен сессии.
func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// CheckReady проверяет связь с Redis.
func (r *Redis) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRedisTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
