package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docqa/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewClient 根据配置创建 Redis 客户端并用 Ping 检查连接。
// 每个进程显式持有自己的客户端，由调用方负责 Close。
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("未配置 Redis 地址")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到 Redis: %w", err)
	}
	return rdb, nil
}

// HealthCheck 检查 Redis 连接的健康状况。
func HealthCheck(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return errors.New("Redis 客户端未初始化")
	}
	return rdb.Ping(ctx).Err()
}
