// Package poller implements the fixed-interval badge refresher used by the
// notification server: per在线连接一个实例，定期取一次待处理计数并投递给客户端。
package poller

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultInterval 在配置缺失或非法时兜底。
	DefaultInterval = 30 * time.Second

	// fetchTimeout 限制单次取数的耗时，慢查询不能拖垮轮询循环。
	fetchTimeout = 10 * time.Second
)

// FetchFunc retrieves the current value to be delivered.
type FetchFunc func(ctx context.Context) (int64, error)

// DeliverFunc receives each successfully fetched value.
type DeliverFunc func(count int64)

// Poller periodically invokes fetch and hands the result to deliver.
// 取数失败只记录日志，下一个周期重试；Poke 在两次周期之间插入一次立即刷新。
type Poller struct {
	interval time.Duration
	fetch    FetchFunc
	deliver  DeliverFunc

	poke     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// 单次取数进行中时丢弃并发的触发，避免慢查询堆积
	inFlight atomic.Bool
}

// New creates a Poller. interval <= 0 falls back to DefaultInterval.
func New(interval time.Duration, fetch FetchFunc, deliver DeliverFunc) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		interval: interval,
		fetch:    fetch,
		deliver:  deliver,
		poke:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Start launches the polling loop. 启动时立即执行一次，之后按固定间隔运行，
// 直到 ctx 结束或 Stop 被调用。
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop terminates the polling loop. Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
	})
}

// Poke schedules an immediate refresh ahead of the next tick.
// 已有待处理的 Poke 时什么都不做（合并触发）。
func (p *Poller) Poke() {
	select {
	case p.poke <- struct{}{}:
	default:
	}
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopped:
			return
		case <-ticker.C:
			p.runOnce(ctx)
		case <-p.poke:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer p.inFlight.Store(false)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	count, err := p.fetch(fetchCtx)
	if err != nil {
		// 瞬时故障吞掉，徽标保持旧值即可
		log.Printf("轮询取数失败: %v", err)
		return
	}
	p.deliver(count)
}
