package gateway

import (
	"context"
	"time"
)

const (
	pongTimeout                  = 6 * time.Second
	streamingPingInterval        = 30 * time.Second
	streamingMaxPongTimeouts     = 2
	timeoutStatePingIntervalMin  = 2 * time.Second
	timeoutStatePingIntervalMax  = pongTimeout
)

// pinger periodically sends Ping frames carrying the last known sn and
// records, via deadline, the instant by which a Pong must arrive. It owns
// nothing about what happens if that deadline is missed — the state
// driver watches deadline and decides when to escalate.
type pinger struct {
	stream   *messageStream
	sn       *watch[uint64]
	deadline *watch[time.Time]
}

func newPinger(stream *messageStream, sn *watch[uint64]) *pinger {
	return &pinger{
		stream:   stream,
		sn:       sn,
		deadline: newWatch(time.Time{}),
	}
}

// runStreaming pings at a fixed interval, matching the Streaming state's
// steady-state keepalive cadence.
func (p *pinger) runStreaming(ctx context.Context) error {
	ticker := time.NewTicker(streamingPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.stream.send(PingMessage(p.sn.get())); err != nil {
				return err
			}
			p.deadline.set(time.Now().Add(pongTimeout))
		}
	}
}

// runTimeoutFastPing pings with a doubling backoff starting at
// timeoutStatePingIntervalMin and clamped to timeoutStatePingIntervalMax,
// matching the Timeout state's attempt to reach the server faster than
// the steady-state cadence before giving up and reconnecting. Unlike
// runStreaming it does not arm deadline: Timeout mode is bounded by a
// single absolute deadline from the moment it was entered, owned by the
// caller, not by a per-ping pong wait.
func (p *pinger) runTimeoutFastPing(ctx context.Context) error {
	interval := timeoutStatePingIntervalMin

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := p.stream.send(PingMessage(p.sn.get())); err != nil {
				return err
			}

			timer.Reset(interval)
			interval *= 2
			if interval > timeoutStatePingIntervalMax {
				interval = timeoutStatePingIntervalMax
			}
		}
	}
}

// clearDeadline records that a frame arrived, so the state driver's
// deadline watcher doesn't fire a stale timeout.
func (p *pinger) clearDeadline() {
	p.deadline.set(time.Time{})
}
