// Package subscriber defines the callback interface bots implement to
// receive events and lifecycle notifications from the bot facade.
package subscriber

import (
	"context"

	"github.com/aviarybot/aviary/gateway"
)

// Subscriber receives events the bot's filter routed to it, plus a
// notification once the underlying connection is established.
type Subscriber interface {
	// Name identifies the subscriber in logs.
	Name() string
	// OnLoaded is called each time the bot starts a connection attempt
	// with no resume state, the first attempt included. It is called
	// before that attempt's handshake, not after it completes.
	OnLoaded(ctx context.Context)
	// OnEvent is called for every event this subscriber's filter accepts.
	OnEvent(ctx context.Context, e gateway.Event)
}

// Func adapts a plain event callback into a Subscriber with no lifecycle
// hook, for subscribers that only care about events.
type Func struct {
	FuncName string
	Handler  func(ctx context.Context, e gateway.Event)
}

func (f Func) Name() string { return f.FuncName }

func (f Func) OnLoaded(context.Context) {}

func (f Func) OnEvent(ctx context.Context, e gateway.Event) {
	f.Handler(ctx, e)
}
