package trace

import (
	"math/rand/v2"
	"strings"
	"time"
)

// retryConfig controls retries of writes that hit SQLite lock contention
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 5,
	baseDelay:  10 * time.Millisecond,
	maxDelay:   200 * time.Millisecond,
}

// transientPatterns are the fragments of modernc.org/sqlite errors that
// disappear on retry
var transientPatterns = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"IOERR_SHORT_READ",
	"database is locked",
	"database table is locked",
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOnContention runs fn until it succeeds, fails permanently or the
// retries are used up. The delay doubles per attempt and carries jitter.
func retryOnContention(fn func() error) error {
	cfg := defaultRetryConfig
	var err error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		if attempt < cfg.maxRetries {
			delay := min(cfg.baseDelay<<uint(attempt), cfg.maxDelay)
			time.Sleep(delay + rand.N(cfg.baseDelay))
		}
	}
	return err
}
