package halcyon

import (
	"math/rand"
	"time"
)

// ReconnectPolicy computes the delay between reconnection attempts:
// exponential growth from BaseDelay capped at MaxDelay, with a symmetric
// jitter fraction applied so shards do not retry in lockstep.
type ReconnectPolicy struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
	MaxAttempts    int32
}

// DefaultReconnectPolicy mirrors the reconnect behaviour of the daemon this
// library grew out of: one second doubling up to a minute.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:      time.Second,
		MaxDelay:       time.Minute,
		JitterFraction: 0.25,
		MaxAttempts:    ShardConnectRetries,
	}
}

// NextDelay returns the delay before the given attempt (0-based). The result
// never exceeds MaxDelay * (1 + JitterFraction).
func (p ReconnectPolicy) NextDelay(attempt int32) time.Duration {
	delay := p.BaseDelay

	for i := int32(0); i < attempt; i++ {
		delay *= 2

		if delay >= p.MaxDelay {
			delay = p.MaxDelay

			break
		}
	}

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.JitterFraction > 0 {
		// Scale by a uniform factor in [1-jitter, 1+jitter].
		factor := 1 + p.JitterFraction*(rand.Float64()*2-1)
		delay = time.Duration(float64(delay) * factor)
	}

	return delay
}

// ShouldGiveUp reports whether the attempt ceiling has been exceeded.
func (p ReconnectPolicy) ShouldGiveUp(attempt int32) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
