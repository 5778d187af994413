package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss 键不存在
var ErrCacheMiss = errors.New("缓存不存在")

// KeyValueStore 会话级键值存储
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// RedisStore 基于 Redis 的键值存储
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 连接 Redis 并检查可用性
func NewRedisStore(ctx context.Context, addr, password string) (*RedisStore, error) {
	// 添加默认端口
	if !strings.Contains(addr, ":") {
		addr = addr + ":6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(pingCtx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close 关闭连接
func (r *RedisStore) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Get 读取键值，不存在时返回 ErrCacheMiss
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	} else if err != nil {
		return "", fmt.Errorf("读取Redis失败: %w", err)
	}
	return val, nil
}

// Set 写入键值
func (r *RedisStore) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("写入Redis失败: %w", err)
	}
	return nil
}

// Delete 删除键
func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("删除Redis键失败: %w", err)
	}
	return nil
}
