package github

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter paces API calls according to the rate limit GitHub reports
type RateLimiter interface {
	// Wait blocks until it's safe to make an API call
	Wait(ctx context.Context) error

	// UpdateLimits updates the limiter with the rate limit reported by a response
	UpdateLimits(remaining int, resetTime time.Time)

	// GetDelay returns the current delay before the next API call
	GetDelay() time.Duration

	// GetStats returns current rate limiter statistics
	GetStats() RateLimiterStats
}

// RateLimiterStats provides statistics about rate limiter usage
type RateLimiterStats struct {
	RemainingRequests int           `json:"remaining_requests"`
	ResetTime         time.Time     `json:"reset_time"`
	CurrentDelay      time.Duration `json:"current_delay"`
	TotalWaits        int64         `json:"total_waits"`
	TotalDelayTime    time.Duration `json:"total_delay_time"`
}

// RateLimiterConfig configures the rate limiter behavior
type RateLimiterConfig struct {
	// BaseDelay is the minimum delay between requests
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between requests
	MaxDelay time.Duration

	// Jitter adds randomness to throttling delays
	Jitter float64

	// MinRemainingRequests is the threshold below which we start throttling
	MinRemainingRequests int

	// ThrottleDelay is the delay applied when no requests remain in the window
	ThrottleDelay time.Duration
}

// DefaultRateLimiterConfig returns a default rate limiter configuration
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		BaseDelay:            0,
		MaxDelay:             30 * time.Second,
		Jitter:               0.1,
		MinRemainingRequests: 100,
		ThrottleDelay:        2 * time.Second,
	}
}

// rateLimiter implements the RateLimiter interface
type rateLimiter struct {
	config *RateLimiterConfig
	mu     sync.Mutex

	remaining int
	resetTime time.Time
	lastCall  time.Time

	stats RateLimiterStats
	rand  *rand.Rand
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimiterConfig) RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}

	return &rateLimiter{
		config:    config,
		remaining: 5000, // GitHub's default authenticated rate limit
		resetTime: time.Now().Add(time.Hour),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until it's safe to make an API call
func (rl *rateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	delay := rl.calculateDelay()
	if delay > 0 {
		rl.stats.TotalWaits++
		rl.stats.TotalDelayTime += delay
	}
	rl.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	rl.mu.Lock()
	rl.lastCall = time.Now()
	rl.mu.Unlock()
	return nil
}

// UpdateLimits updates the limiter with the rate limit reported by a response
func (rl *rateLimiter) UpdateLimits(remaining int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.remaining = remaining
	rl.resetTime = resetTime
	rl.stats.RemainingRequests = remaining
	rl.stats.ResetTime = resetTime
}

// GetDelay returns the current delay before the next API call
func (rl *rateLimiter) GetDelay() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.calculateDelay()
}

// GetStats returns current rate limiter statistics
func (rl *rateLimiter) GetStats() RateLimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := rl.stats
	stats.CurrentDelay = rl.calculateDelay()
	return stats
}

// calculateDelay calculates the delay needed before the next API call
func (rl *rateLimiter) calculateDelay() time.Duration {
	now := time.Now()

	var totalDelay time.Duration

	if !rl.lastCall.IsZero() && rl.config.BaseDelay > 0 {
		timeSinceLastCall := now.Sub(rl.lastCall)
		if timeSinceLastCall < rl.config.BaseDelay {
			totalDelay = rl.config.BaseDelay - timeSinceLastCall
		}
	}

	// The window has reset, only the base pacing applies
	if now.After(rl.resetTime) {
		return totalDelay
	}

	if rl.remaining < rl.config.MinRemainingRequests {
		if throttle := rl.calculateThrottleDelay(now); throttle > totalDelay {
			totalDelay = throttle
		}

		if rl.config.Jitter > 0 && totalDelay > 0 {
			jitterAmount := float64(totalDelay) * rl.config.Jitter
			totalDelay += time.Duration(rl.rand.Float64() * jitterAmount)
		}
	}

	if rl.config.MaxDelay > 0 && totalDelay > rl.config.MaxDelay {
		totalDelay = rl.config.MaxDelay
	}

	return totalDelay
}

// calculateThrottleDelay calculates delay when remaining requests are low
func (rl *rateLimiter) calculateThrottleDelay(now time.Time) time.Duration {
	if rl.remaining <= 0 {
		// No requests remaining, wait until reset
		return rl.resetTime.Sub(now)
	}

	// Fewer remaining requests means a longer delay
	remainingRatio := float64(rl.remaining) / float64(rl.config.MinRemainingRequests)
	if remainingRatio >= 1.0 {
		return 0
	}
	return time.Duration(float64(rl.config.ThrottleDelay) * (1.0 - remainingRatio))
}

// rateLimitTransport waits on the limiter before each request and feeds it the
// X-RateLimit headers of each response.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter RateLimiter
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	remaining, errRemaining := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	reset, errReset := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if errRemaining == nil && errReset == nil {
		t.limiter.UpdateLimits(remaining, time.Unix(reset, 0))
	}

	return resp, nil
}
