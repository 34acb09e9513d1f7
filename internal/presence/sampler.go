package presence

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"openboard/internal/bus"
)

// sampler bounds a high-frequency signal to one message per interval. The
// latest sample sits in a single-slot buffer and is flushed when the
// interval reopens, so the receiver always converges on the newest value
// while intermediate samples are dropped.
type sampler struct {
	interval time.Duration
	limiter  *rate.Limiter
	send     func(bus.Message)

	mu      sync.Mutex
	pending *bus.Message
	armed   bool
}

func newSampler(interval time.Duration, send func(bus.Message)) *sampler {
	return &sampler{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		send:     send,
	}
}

// offer sends immediately when the rate limit allows, otherwise parks the
// sample for the next flush, replacing any earlier parked one.
func (s *sampler) offer(m bus.Message) {
	if s.limiter.Allow() {
		s.send(m)
		return
	}

	s.mu.Lock()
	s.pending = &m
	if !s.armed {
		s.armed = true
		time.AfterFunc(s.interval, s.flush)
	}
	s.mu.Unlock()
}

func (s *sampler) flush() {
	s.mu.Lock()
	m := s.pending
	s.pending = nil
	s.armed = false
	s.mu.Unlock()

	if m != nil {
		s.limiter.Allow() // consume the slot the flush uses
		s.send(*m)
	}
}

// drop clears any parked sample, used when the interaction ends and a stale
// flush would resurrect it.
func (s *sampler) drop() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}
