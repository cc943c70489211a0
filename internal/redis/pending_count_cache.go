package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"moodlink/internal/services"

	"github.com/redis/go-redis/v9"
)

// redisPendingCountCache 是 services.PendingCountCache 的 Redis 实现。
// countPending 被徽标以固定间隔轮询，直接打到数据库太浪费；这里用一个短 TTL
// 的计数键顶住读压力，写路径（request/accept）负责失效。
type redisPendingCountCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPendingCountCache 创建一个新的 redisPendingCountCache 实例。
func NewRedisPendingCountCache(client *redis.Client, ttl time.Duration) services.PendingCountCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisPendingCountCache{client: client, ttl: ttl}
}

const pendingCountKeyPrefix = "pending:count:"

func pendingCountKey(userID uint) string {
	return pendingCountKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}

// Get 读取缓存的计数。未命中返回 (0, false, nil)。
func (r *redisPendingCountCache) Get(ctx context.Context, userID uint) (int64, bool, error) {
	val, err := r.client.Get(ctx, pendingCountKey(userID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("读取待处理计数缓存失败 for user %d: %w", userID, err)
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// 脏数据当作未命中处理
		return 0, false, nil
	}
	return count, true, nil
}

// Set 写入计数并附带 TTL；TTL 兜底失效逻辑的遗漏。
func (r *redisPendingCountCache) Set(ctx context.Context, userID uint, count int64) error {
	err := r.client.Set(ctx, pendingCountKey(userID), strconv.FormatInt(count, 10), r.ttl).Err()
	if err != nil {
		return fmt.Errorf("写入待处理计数缓存失败 for user %d: %w", userID, err)
	}
	return nil
}

// Invalidate 删除计数键，下一次读取回源数据库。
func (r *redisPendingCountCache) Invalidate(ctx context.Context, userID uint) error {
	err := r.client.Del(ctx, pendingCountKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("失效待处理计数缓存失败 for user %d: %w", userID, err)
	}
	return nil
}
