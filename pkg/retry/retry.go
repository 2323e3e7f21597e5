package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config はリトライの設定を保持する
type Config struct {
	Attempts     int
	BaseInterval time.Duration
	MaxBackoff   time.Duration
}

// DefaultConfig はデフォルトのリトライ設定を返す
func DefaultConfig() Config {
	return Config{
		Attempts:     3,
		BaseInterval: 50 * time.Millisecond,
		MaxBackoff:   500 * time.Millisecond,
	}
}

// Backoff は指数バックオフ + ジッターを計算する
func Backoff(attempt int, baseInterval, maxBackoff time.Duration) time.Duration {
	d := baseInterval << attempt
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	// +/-10% jitter
	return time.Duration(int64(d) * int64(9+rand.Intn(3)) / 10)
}

// Predicate はエラーがリトライ可能かを判定する
type Predicate func(err error) bool

// Always は全てのエラーをリトライ対象とする
func Always(err error) bool {
	return err != nil
}

// Do は fn を最大 cfg.Attempts 回実行する。
// 冪等な操作にのみ使用すること。produce のような非冪等な呼び出しを再送してはならない。
func Do(ctx context.Context, cfg Config, retryable Predicate, fn func(ctx context.Context, attempt int) error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	if retryable == nil {
		retryable = Always
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx, i); err == nil {
			return nil
		}
		if !retryable(err) || i == attempts-1 {
			return err
		}

		timer := time.NewTimer(Backoff(i, cfg.BaseInterval, cfg.MaxBackoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}

	return err
}
