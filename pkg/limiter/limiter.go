package limiter

import (
	"sync/atomic"
	"time"
)

// ConcurrencyLimiter bounds how many callers may hold a ticket at once. It
// is used to keep concurrent Identify payloads under the gateway's
// max_concurrency budget.
type ConcurrencyLimiter struct {
	tickets    chan int
	inProgress atomic.Int32
}

func NewConcurrencyLimiter(limit int) *ConcurrencyLimiter {
	c := &ConcurrencyLimiter{
		tickets: make(chan int, limit),
	}

	for i := 0; i < limit; i++ {
		c.tickets <- i
	}

	return c
}

// Wait blocks until a ticket is free. Callers must return it with FreeTicket.
func (c *ConcurrencyLimiter) Wait() int {
	ticket := <-c.tickets
	c.inProgress.Add(1)

	return ticket
}

// FreeTicket returns a ticket to the pool.
func (c *ConcurrencyLimiter) FreeTicket(ticket int) {
	c.tickets <- ticket
	c.inProgress.Add(-1)
}

// InProgress returns how many tickets are currently held.
func (c *ConcurrencyLimiter) InProgress() int32 {
	return c.inProgress.Load()
}

// DurationLimiter allows an operation to run at most limit times per
// duration, blocking callers once the window is exhausted.
type DurationLimiter struct {
	limit    int32
	duration int64

	resetsAt  atomic.Int64
	available atomic.Int32
}

func NewDurationLimiter(limit int32, duration time.Duration) *DurationLimiter {
	return &DurationLimiter{
		limit:    limit,
		duration: duration.Nanoseconds(),
	}
}

// Lock blocks until a slot in the current window is available.
func (l *DurationLimiter) Lock() {
	for {
		now := time.Now().UnixNano()

		if l.resetsAt.Load() <= now {
			l.resetsAt.Store(now + l.duration)
			l.available.Store(l.limit)
		}

		if l.available.Add(-1) >= 0 {
			return
		}

		time.Sleep(time.Duration(l.resetsAt.Load() - now))
	}
}

// Reset starts a fresh window immediately.
func (l *DurationLimiter) Reset() {
	l.resetsAt.Store(time.Now().UnixNano() + l.duration)
	l.available.Store(l.limit)
}
