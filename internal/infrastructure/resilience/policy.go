package resilience

import "time"

// Operation names a guarded capability call. Breakers are kept per service
// and operation, so a failing generator never trips embedding.
type Operation string

const (
	OpEmbed     Operation = "embed"
	OpGenerate  Operation = "generate"
	OpSearchWeb Operation = "search_web"
	OpPublish   Operation = "publish"
)

// Config is the retry and breaker budget shared by every capability.
// Attempts lowers RetryMaxAttempts for individual operations.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	Attempts            map[Operation]int

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,
		Attempts:            DefaultAttempts(),

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// DefaultAttempts caps the user-facing answer path at one retry; a question
// already waits on retrieval before generation starts.
func DefaultAttempts() map[Operation]int {
	return map[Operation]int{
		OpGenerate:  2,
		OpSearchWeb: 2,
	}
}

func (c Config) attemptsFor(op Operation) int {
	if n, ok := c.Attempts[op]; ok && n > 0 && n < c.RetryMaxAttempts {
		return n
	}
	return c.RetryMaxAttempts
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	out.RetryMaxBackoff = max(out.RetryMaxBackoff, out.RetryInitialBackoff)
	if out.RetryMultiplier < 1 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return out
}
