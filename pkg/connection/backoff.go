package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Redial delay constants. These bound the caller-side redial loop that
// re-dials the AMQP connection and re-opens the CBS link after a link
// loss; the session Controller itself never retries (spec.md §4.1, §9).
const (
	// InitialRedialDelay is the delay before the first redial attempt.
	InitialRedialDelay = 1 * time.Second

	// MaxRedialDelay caps how long the supervisor waits between attempts.
	MaxRedialDelay = 60 * time.Second

	// RedialDelayMultiplier is the factor applied to the delay after each
	// failed attempt.
	RedialDelayMultiplier = 2.0

	// RedialJitterFraction is the maximum jitter added on top of a delay,
	// expressed as a fraction of that delay.
	RedialJitterFraction = 0.25
)

// RedialBackoff produces successive redial delays with jitter, doubling
// the delay on each failed attempt up to a ceiling and resetting once a
// dial succeeds.
type RedialBackoff struct {
	mu sync.Mutex

	floor      time.Duration
	ceiling    time.Duration
	multiplier float64
	jitter     float64

	delay    time.Duration
	attempts int

	rng *rand.Rand
}

// RedialBackoffConfig overrides RedialBackoff's default parameters.
type RedialBackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// NewRedialBackoff returns a RedialBackoff using the package's default
// delay progression (1s, 2s, 4s, ... capped at 60s).
func NewRedialBackoff() *RedialBackoff {
	return NewRedialBackoffWithConfig(RedialBackoffConfig{
		Initial:    InitialRedialDelay,
		Max:        MaxRedialDelay,
		Multiplier: RedialDelayMultiplier,
		Jitter:     RedialJitterFraction,
	})
}

// NewRedialBackoffWithConfig returns a RedialBackoff with custom
// parameters, substituting a package default for any zero/invalid field.
func NewRedialBackoffWithConfig(cfg RedialBackoffConfig) *RedialBackoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialRedialDelay
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxRedialDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = RedialDelayMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &RedialBackoff{
		floor:      cfg.Initial,
		ceiling:    cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		delay:      cfg.Initial,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the jittered delay to wait before the next redial attempt
// and advances the underlying (unjittered) delay toward the ceiling.
func (b *RedialBackoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.jittered(b.delay)

	b.attempts++
	next := time.Duration(float64(b.delay) * b.multiplier)
	if next > b.ceiling {
		next = b.ceiling
	}
	b.delay = next

	return out
}

// Peek returns the jittered delay that Next would currently return,
// without advancing the sequence.
func (b *RedialBackoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jittered(b.delay)
}

// Reset restores the delay to its initial value. Call this once a dial
// succeeds so the next link loss starts the progression over.
func (b *RedialBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = b.floor
	b.attempts = 0
}

// Attempts reports the number of redial attempts since the last Reset.
func (b *RedialBackoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current reports the base (unjittered) delay that the next Next() call
// would advance from.
func (b *RedialBackoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delay
}

func (b *RedialBackoff) jittered(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*b.rng.Float64())
}

// RedialDelaySequence returns the base (unjittered) delay progression, up
// to and including the delay that first hits the ceiling, under the
// package's default parameters. It exists for tests and documentation,
// mirroring the progression spelled out in doc.go.
func RedialDelaySequence() []time.Duration {
	seq := make([]time.Duration, 0, 7)
	d := InitialRedialDelay
	for {
		seq = append(seq, d)
		if d >= MaxRedialDelay {
			return seq
		}
		d = time.Duration(float64(d) * RedialDelayMultiplier)
		if d > MaxRedialDelay {
			d = MaxRedialDelay
		}
	}
}
