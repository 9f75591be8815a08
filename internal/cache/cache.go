// Package cache 提供验证结果的Redis缓存
// 验证是 (实例, 解) 的纯函数，结果可以按内容键安全缓存
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/shangmen/shangmen/internal/config"
	"github.com/shangmen/shangmen/pkg/logger"
)

// Cache 验证结果缓存
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New 创建缓存客户端
func New(cfg *config.RedisConfig, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis连接测试失败: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr()).Msg("Redis连接成功")
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// Close 关闭缓存客户端
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// key 由实例签名与解内容哈希构成
func (c *Cache) key(instanceSignature, solutionHash string) string {
	return "shangmen:validation:" + instanceSignature + ":" + solutionHash
}

// Get 查找缓存的验证结果，未命中返回 (nil, false)
func (c *Cache) Get(ctx context.Context, instanceSignature, solutionHash string, out interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, c.key(instanceSignature, solutionHash)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("读取缓存失败: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("反序列化缓存结果失败: %w", err)
	}
	return true, nil
}

// Set 缓存验证结果
func (c *Cache) Set(ctx context.Context, instanceSignature, solutionHash string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化验证结果失败: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(instanceSignature, solutionHash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	return nil
}
