// Package ratelimit ограничивает частоту запросов к торговому API.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter - token bucket для контроля частоты HTTP запросов к бирже.
//
// Ведро наполняется со скоростью rate токенов/сек до ёмкости burst;
// каждый запрос потребляет один токен, при пустом ведре Wait блокирует.
// Burst важен для пакетной отмены: до 20 отмен уходят одним всплеском.
type Limiter struct {
	mu         sync.Mutex
	rate       float64 // токенов в секунду
	burst      float64 // ёмкость ведра
	tokens     float64
	lastRefill time.Time
}

// New создаёт limiter. Базовый лимит торгового API - 10 tx/sec,
// поэтому rate<=0 даёт 10, burst<=0 даёт 2x rate.
func New(rate, burst float64) *Limiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
	}
}

// refill пополняет токены пропорционально прошедшему времени.
// Вызывается под lock'ом.
func (l *Limiter) refill() {
	now := time.Now()
	l.tokens += now.Sub(l.lastRefill).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now
}

// Allow сообщает, можно ли выполнить запрос прямо сейчас, не блокируя
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait блокирует до появления токена или отмены контекста
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		// Сколько ждать до следующего токена
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
