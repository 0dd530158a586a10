package ratelimit

import (
	"sync"
	"time"
)

// Limiter 滑动窗口限流器
// 按标识符记录窗口内的请求时间戳，窗口外的条目在下一次检查时惰性淘汰。
// 单实例、进程内，不跨进程共享。
type Limiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests map[string][]time.Time
	now      func() time.Time
}

// New 创建限流器
// limit: 窗口内允许的最大请求数; window: 窗口长度
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:    limit,
		window:   window,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow 判断标识符在当前窗口内是否还允许一次请求
// 允许时记录本次请求时间；拒绝时不记录。
func (l *Limiter) Allow(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	// 淘汰窗口外的时间戳
	valid := make([]time.Time, 0, len(l.requests[identifier]))
	for _, ts := range l.requests[identifier] {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= l.limit {
		l.requests[identifier] = valid
		return false
	}

	valid = append(valid, now)
	l.requests[identifier] = valid
	return true
}
