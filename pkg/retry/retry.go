// Package retry - повторные попытки с экспоненциальным backoff и jitter.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config задаёт политику повторов
//
// delay = min(InitialDelay * Multiplier^attempt, MaxDelay) +- jitter
//
// Jitter размазывает повторы по времени, чтобы параллельные отмены
// не били в API одновременно после общего сбоя.
type Config struct {
	// MaxAttempts - всего попыток, включая первую. <=0 - одна попытка.
	MaxAttempts int

	// InitialDelay - задержка после первой неудачи (default: 100ms)
	InitialDelay time.Duration

	// MaxDelay - потолок задержки (default: 5s)
	MaxDelay time.Duration

	// Multiplier - множитель экспоненты (default: 2.0)
	Multiplier float64

	// JitterFactor - доля случайности 0..1 (default: 0.1)
	JitterFactor float64

	// RetryIf решает, повторять ли после данной ошибки.
	// nil - повторяются все ошибки. Ордерные операции не идемпотентны:
	// вызывающий обязан ограничивать повторы транспортными отказами.
	RetryIf func(error) bool

	// OnRetry вызывается перед каждым повтором (для логирования)
	OnRetry func(attempt int, err error, delay time.Duration)
}

// HTTPConfig - политика для отмен и amend'ов по HTTP:
// 3 попытки, задержки 100ms, 200ms
func HTTPConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c *Config) validate() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

func (c *Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do выполняет операцию с повторами по политике cfg.
// Возвращает nil при успехе любой попытки, иначе последнюю ошибку.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	cfg.validate()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		d := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, d)
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
