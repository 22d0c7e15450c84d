package utils

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisClient обертка над Redis клиентом: кэш JSON-значений и распределенные блокировки
type RedisClient struct {
	client *redis.Client
	locker *redislock.Client
}

// NewRedisClient создает новый Redis клиент
func NewRedisClient(client *redis.Client) *RedisClient {
	return &RedisClient{
		client: client,
		locker: redislock.New(client),
	}
}

// Client возвращает исходный клиент go-redis
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Locker возвращает клиент распределенных блокировок
func (r *RedisClient) Locker() *redislock.Client {
	return r.locker
}

// Set сохраняет значение с TTL (не строки сериализуются в JSON)
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var data string
	switch v := value.(type) {
	case string:
		data = v
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return err
		}
		data = string(jsonData)
	}

	return r.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON получает и парсит JSON значение
func (r *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Delete удаляет ключи
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// IsMiss true, если ключа нет в Redis
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
