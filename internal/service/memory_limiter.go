package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/industrialcatalog/catalog-server/internal/config"
)

const (
	memoryLimiterMaxEntries      = 10000
	memoryLimiterCleanupInterval = time.Minute
)

type windowEntry struct {
	timestamps []time.Time
	lastAccess time.Time
	window     time.Duration
}

// MemoryLimiter is the single-process sliding window used when REDIS_URL is
// not set. Counts are lost on restart and are not shared between replicas.
type MemoryLimiter struct {
	mu          sync.Mutex
	store       map[string]*windowEntry
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		store:       make(map[string]*windowEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *MemoryLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < memoryLimiterCleanupInterval {
		return
	}
	l.lastCleanup = now

	for key, entry := range l.store {
		if now.Sub(entry.lastAccess) > entry.window {
			delete(l.store, key)
		}
	}

	if len(l.store) > memoryLimiterMaxEntries {
		drop := len(l.store) / 5
		for key := range l.store {
			if drop == 0 {
				break
			}
			delete(l.store, key)
			drop--
		}
	}
}

// CheckLimit mirrors RateLimiter.CheckLimit without Redis.
func (l *MemoryLimiter) CheckLimit(key string, limit int, window time.Duration) (allowed bool, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	entry, ok := l.store[key]
	if !ok {
		entry = &windowEntry{window: window}
		l.store[key] = entry
	}
	entry.lastAccess = now

	windowStart := now.Add(-window)
	kept := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	entry.timestamps = kept

	if len(entry.timestamps) >= limit {
		return false, entry.timestamps[0].Add(window)
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, now.Add(window)
}

func (l *MemoryLimiter) AllowSendCode(_ context.Context, adminID int64) (bool, time.Time) {
	return l.CheckLimit(fmt.Sprintf("send_code:%d", adminID), config.SendCodeLimit, config.SendCodeWindow)
}

func (l *MemoryLimiter) AllowVerifyCode(_ context.Context, adminID int64, clientIP string) (bool, time.Time) {
	return l.CheckLimit(verifyCodeKey(adminID, clientIP), config.VerifyCodeLimit, config.VerifyCodeWindow)
}
