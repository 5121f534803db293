package halcyon

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Heartbeater keeps one gateway connection alive. It fires at the
// server-dictated interval, jittered on the first fire only, and tracks the
// single outstanding heartbeat: if the acknowledgement does not arrive
// within the failure interval the connection is declared dead.
type Heartbeater struct {
	logger zerolog.Logger

	interval        time.Duration
	failureInterval time.Duration

	ticker *time.Ticker

	active   *atomic.Bool
	lastSent *atomic.Time
	lastAck  *atomic.Time
	latency  *atomic.Duration

	stop chan struct{}
}

func NewHeartbeater(logger zerolog.Logger, interval time.Duration) *Heartbeater {
	now := time.Now().UTC()

	return &Heartbeater{
		logger: logger,

		interval:        interval,
		failureInterval: interval * time.Duration(MaxHeartbeatFailures),

		active:   atomic.NewBool(false),
		lastSent: atomic.NewTime(now),
		lastAck:  atomic.NewTime(now),
		latency:  atomic.NewDuration(0),

		stop: make(chan struct{}, 1),
	}
}

// Ack records the acknowledgement of the outstanding heartbeat.
func (hb *Heartbeater) Ack() {
	now := time.Now().UTC()
	hb.lastAck.Store(now)
	hb.latency.Store(now.Sub(hb.lastSent.Load()))
}

// Latency returns the send-to-ack duration of the last heartbeat round trip.
func (hb *Heartbeater) Latency() time.Duration {
	return hb.latency.Load()
}

// Active reports whether the heartbeat loop is running.
func (hb *Heartbeater) Active() bool {
	return hb.active.Load()
}

// Overdue reports whether the outstanding heartbeat has gone unacknowledged
// past the failure interval.
func (hb *Heartbeater) Overdue(now time.Time) bool {
	return now.Sub(hb.lastAck.Load()) > hb.failureInterval
}

// Stop cancels the heartbeat loop. Safe to call more than once.
func (hb *Heartbeater) Stop() {
	select {
	case hb.stop <- struct{}{}:
	default:
	}
}

// Run drives the heartbeat loop until stopped. beat sends one heartbeat
// frame; onFailure is invoked at most once when a send fails or the ack is
// overdue, after which the loop exits.
func (hb *Heartbeater) Run(ctx context.Context, beat func(ctx context.Context) error, onFailure func(err error)) {
	hb.active.Store(true)
	defer hb.active.Store(false)

	// Jitter the first fire so many shards do not heartbeat in lockstep.
	jitter := time.Duration(rand.Int63n(int64(hb.interval) + 1))

	if hb.ticker == nil {
		hb.ticker = time.NewTicker(jitter + time.Nanosecond)
	} else {
		hb.ticker.Reset(jitter + time.Nanosecond)
	}

	defer hb.ticker.Stop()

	hb.logger.Debug().
		Dur("interval", hb.interval).
		Dur("jitter", jitter).
		Msg("Started heartbeating")

	firstTick := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-hb.stop:
			return
		case <-hb.ticker.C:
			if firstTick {
				firstTick = false

				hb.ticker.Reset(hb.interval)
			}

			err := beat(ctx)

			now := time.Now().UTC()
			hb.lastSent.Store(now)

			if err != nil || hb.Overdue(now) {
				if err == nil {
					err = ErrHeartbeatFailed
				}

				hb.logger.Warn().Err(err).Msg("Heartbeat failed")

				onFailure(err)

				return
			}
		}
	}
}
