// Package bot is the framework facade: it owns the outer reconnect loop,
// fetches a gateway URL, drives one gateway.Client connection at a time,
// and fans out delivered events to registered subscribers.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aviarybot/aviary/api"
	"github.com/aviarybot/aviary/filter"
	"github.com/aviarybot/aviary/gateway"
	"github.com/aviarybot/aviary/health"
	"github.com/aviarybot/aviary/subscriber"
)

const (
	refetchDelayStart = 1 * time.Second
	refetchDelayMax   = 60 * time.Second
	eventBufferSize   = 64
)

type registration struct {
	sub    subscriber.Subscriber
	filter filter.Filter
}

// Bot owns a gateway connection and dispatches events to subscribers
// whose filter accepts them.
type Bot struct {
	api    *api.Client
	token  string
	logger *slog.Logger

	mu     sync.Mutex
	subs   []registration
	status health.Status
}

// Status reports the bot's current connection state, satisfying
// health.StatusProvider.
func (b *Bot) Status() health.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// New builds a Bot that authenticates websocket connections with token
// and looks up gateway URLs through apiClient.
func New(apiClient *api.Client, token string, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{api: apiClient, token: token, logger: logger}
}

// Subscribe registers sub to receive every event f accepts. OnLoaded goes
// to the subscribers registered at the moment Run starts a connection
// attempt without resume state, before that attempt's handshake; a
// subscriber registered later does not get that attempt's notification.
func (b *Bot) Subscribe(sub subscriber.Subscriber, f filter.Filter) {
	if f == nil {
		f = filter.Accept
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, registration{sub: sub, filter: f})
}

// Run drives the bot until ctx is canceled: fetch a gateway URL, run one
// connection to exhaustion, and on failure back off (1s doubling, capped
// at 60s) before fetching a fresh URL, carrying forward whatever resume
// state the failed connection reported.
func (b *Bot) Run(ctx context.Context) error {
	var resume *gateway.ResumeState
	refetchDelay := refetchDelayStart

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rawURL, err := b.api.GatewayURL(ctx)
		if err != nil {
			b.logger.Warn("fetch gateway url failed", "error", err, "retry_in", refetchDelay)
			if !sleepOrDone(ctx, refetchDelay) {
				return ctx.Err()
			}
			refetchDelay = nextDelay(refetchDelay)
			continue
		}

		gw, err := gateway.ParseGatewayURL(rawURL, b.token)
		if err != nil {
			b.logger.Warn("parse gateway url failed", "error", err, "retry_in", refetchDelay)
			if !sleepOrDone(ctx, refetchDelay) {
				return ctx.Err()
			}
			refetchDelay = nextDelay(refetchDelay)
			continue
		}
		*gw = gw.WithResume(resume)

		client := gateway.NewClient(b.logger)
		out := make(chan gateway.Event, eventBufferSize)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.dispatch(ctx, out)
		}()

		b.setConnected(true)
		if resume == nil {
			b.notifyLoaded(ctx)
		}

		streamErr := client.Run(ctx, *gw, out)
		close(out)
		wg.Wait()

		b.setConnected(false)
		resume = streamErr.Resume

		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.logger.Warn("gateway connection ended", "error", streamErr.Err, "will_resume", resume != nil)

		b.mu.Lock()
		b.status.ReconnectCount++
		b.mu.Unlock()

		if resume == nil {
			refetchDelay = refetchDelayStart
		}
		if !sleepOrDone(ctx, refetchDelay) {
			return ctx.Err()
		}
		refetchDelay = nextDelay(refetchDelay)
	}
}

func (b *Bot) setConnected(connected bool) {
	b.mu.Lock()
	b.status.Connected = connected
	b.mu.Unlock()
}

// dispatch fans each event out to every matching subscriber concurrently,
// until out is closed.
func (b *Bot) dispatch(ctx context.Context, out <-chan gateway.Event) {
	for e := range out {
		b.mu.Lock()
		b.status.LastEventSN = e.SN
		b.status.LastEventAt = time.Now()
		subs := make([]registration, len(b.subs))
		copy(subs, b.subs)
		b.mu.Unlock()

		for _, reg := range subs {
			if !reg.filter.Accepts(e) {
				continue
			}
			reg := reg
			go func() {
				defer b.recoverSubscriberPanic(reg.sub)
				reg.sub.OnEvent(ctx, e)
			}()
		}
	}
}

func (b *Bot) notifyLoaded(ctx context.Context) {
	b.mu.Lock()
	subs := make([]registration, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, reg := range subs {
		reg := reg
		go func() {
			defer b.recoverSubscriberPanic(reg.sub)
			reg.sub.OnLoaded(ctx)
		}()
	}
}

func (b *Bot) recoverSubscriberPanic(sub subscriber.Subscriber) {
	if r := recover(); r != nil {
		b.logger.Error("subscriber panicked", "subscriber", sub.Name(), "panic", fmt.Sprint(r))
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > refetchDelayMax {
		d = refetchDelayMax
	}
	return d
}

// sleepOrDone waits for d or ctx cancellation, returning false if ctx was
// canceled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
