package services

import "context"

// PendingCountCache 缓存每个用户的待处理请求数，供徽标轮询高频读取。
// Get 未命中时返回 (0, false, nil)；缓存故障不应阻塞主流程，由调用方降级。
type PendingCountCache interface {
	Get(ctx context.Context, userID uint) (int64, bool, error)
	Set(ctx context.Context, userID uint, count int64) error
	Invalidate(ctx context.Context, userID uint) error
}
