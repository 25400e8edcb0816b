package sendqueue

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	DefaultBackoffBase = 2.0
	DefaultJitter      = time.Second
)

// BackoffPolicy computes retry delays as base^attempts seconds plus a uniform
// jitter below Jitter. With base 2 and a one second jitter the delay strictly
// grows with attempts.
type BackoffPolicy struct {
	Base   float64
	Jitter time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

// NewBackoffPolicy returns the default policy. A nil source uses the global
// random generator.
func NewBackoffPolicy(src rand.Source) *BackoffPolicy {
	p := &BackoffPolicy{Base: DefaultBackoffBase, Jitter: DefaultJitter}
	if src != nil {
		p.rand = rand.New(src)
	}

	return p
}

// Delay returns the wait before retrying a message that has been attempted
// attempts times.
func (p *BackoffPolicy) Delay(attempts int) time.Duration {
	delay := time.Duration(math.Pow(p.Base, float64(attempts)) * float64(time.Second))

	return delay + p.jitter()
}

func (p *BackoffPolicy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}

	if p.rand == nil {
		return rand.N(p.Jitter)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return time.Duration(p.rand.Int64N(int64(p.Jitter)))
}
