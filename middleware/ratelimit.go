package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimit 按 IP 滑动窗口限流
// 每个 IP 在 window 内最多 maxRequests 次请求，超过则返回 429
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	l := newSlidingWindow(maxRequests, window)
	go l.cleanupLoop(time.Minute)

	return func(c *gin.Context) {
		if !l.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "请求过于频繁，请稍后再试",
			})
			return
		}
		c.Next()
	}
}

type slidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{max: max, window: window, hits: make(map[string][]time.Time)}
}

// prune 移除窗口外的记录，调用方持有锁
func (l *slidingWindow) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	ts := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			ts = append(ts, t)
		}
	}
	return ts
}

func (l *slidingWindow) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.prune(key, now)
	if len(ts) >= l.max {
		l.hits[key] = ts
		return false
	}
	l.hits[key] = append(ts, now)
	return true
}

// cleanupLoop 定期清理过期数据
func (l *slidingWindow) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		l.mu.Lock()
		for key := range l.hits {
			if ts := l.prune(key, now); len(ts) == 0 {
				delete(l.hits, key)
			} else {
				l.hits[key] = ts
			}
		}
		l.mu.Unlock()
	}
}
