package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default dial breaker settings.
const (
	defaultBreakerFailures uint32        = 5
	defaultBreakerTimeout  time.Duration = 30 * time.Second
)

// ErrInstanceUnavailable wraps dials refused by an open breaker.
var ErrInstanceUnavailable = errors.New("client: instance unavailable")

// WithBreaker sets how many consecutive failed dials open an instance's
// breaker and how long it stays open before a probe dial is allowed.
func WithBreaker(maxFailures uint32, timeout time.Duration) Option {
	return func(o *options) {
		o.breakerFailures = maxFailures
		o.breakerTimeout = timeout
	}
}

// breaker returns the dial breaker of addr, creating it on first use.
func (c *Client) breaker(addr string) *gobreaker.CircuitBreaker[*Peer] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[addr]; ok {
		return cb
	}

	maxFailures := c.opts.breakerFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerFailures
	}
	timeout := c.opts.breakerTimeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	logger := c.opts.logger

	cb := gobreaker.NewCircuitBreaker[*Peer](gobreaker.Settings{
		Name:        "dial:" + addr,
		MaxRequests: 1, // one probe dial while half-open
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("dial breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	c.breakers[addr] = cb
	return cb
}

func (c *Client) dialGuarded(addr string, dial func() (*Peer, error)) (*Peer, error) {
	p, err := c.breaker(addr).Execute(dial)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstanceUnavailable, addr, err)
	}
	return p, err
}
