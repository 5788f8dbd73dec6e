package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Client runs a single gateway connection attempt end to end: connect,
// handshake, then stream events until the link can no longer continue.
// One Client value is good for exactly one Run call; the caller (the bot
// package's outer reconnect loop) constructs a fresh Client, carrying the
// returned resume state forward, for each attempt.
type Client struct {
	dial       dialer
	logger     *slog.Logger
	errLimiter *rate.Limiter
}

// NewClient builds a Client that dials real websocket connections.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		dial:       newWebsocketDialer(),
		logger:     logger,
		errLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

func newClientWithDialer(d dialer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{dial: d, logger: logger, errLimiter: rate.NewLimiter(rate.Every(time.Second), 5)}
}

// Run opens gw, completes the handshake (fresh or resumed), and streams
// ordered events to out until the connection ends. It always returns a
// non-nil *EventStreamError describing why, and carrying the resume state
// (nil if the next attempt must start fresh) for the caller's next Run.
func (c *Client) Run(ctx context.Context, gw GatewayURL, out chan<- Event) *EventStreamError {
	conn, connErr := c.connect(ctx, gw)
	if connErr != nil {
		return &EventStreamError{Resume: gw.Resume, Err: &RunError{ConnectFailed: connErr}}
	}

	stream := newMessageStream(conn, gw.Compress)
	defer stream.close()

	sessionID, sn, helloErr := c.waitHello(stream, gw.Resume)
	if helloErr != nil {
		nextResume := gw.Resume
		if helloErr.Kind == WaitHelloErrReconnectRejected {
			nextResume = nil
		}
		return &EventStreamError{Resume: nextResume, Err: &RunError{WaitHelloFailed: helloErr}}
	}

	c.logger.Debug("gateway handshake complete", "session_id", sessionID, "sn", sn)
	return c.runConnectedLoop(ctx, stream, sessionID, sn, out)
}

// connect dials the gateway URL, retrying once on failure before giving
// up, matching the protocol's documented one-retry tolerance for a cold
// link.
func (c *Client) connect(ctx context.Context, gw GatewayURL) (Conn, *ConnectGatewayError) {
	url := gw.String()
	conn, err := c.dial.Dial(url)
	if err != nil {
		conn, err = c.dial.Dial(url)
		if err != nil {
			return nil, &ConnectGatewayError{URL: url, Err: err}
		}
	}
	return conn, nil
}

// waitHello performs the post-connect handshake: for a fresh connection
// it waits for Hello; for a resume it sends Resume(sn) and waits for
// either ResumeACK (resume accepted) or Reconnect (resume rejected,
// caller must start fresh). Non-fatal stream errors are skipped; the
// whole handshake is bounded by one pong-timeout-length deadline.
func (c *Client) waitHello(stream *messageStream, resume *ResumeState) (string, uint64, *WaitHelloError) {
	if resume != nil {
		if err := stream.send(ResumeMessage(resume.SN)); err != nil {
			return "", 0, &WaitHelloError{Kind: WaitHelloErrMessageStream, Err: err}
		}
	}

	deadline := time.Now().Add(pongTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", 0, &WaitHelloError{Kind: WaitHelloErrTimeout}
		}
		_ = stream.conn.SetReadDeadline(deadline)

		msg, err := stream.next()
		if err != nil {
			var te *TransportError
			if errors.As(err, &te) && !te.NeedStop() {
				continue
			}
			return "", 0, &WaitHelloError{Kind: WaitHelloErrMessageStream, Err: err}
		}

		switch msg.Type {
		case MessageHello:
			if msg.Hello.Code != 0 {
				return "", 0, &WaitHelloError{Kind: WaitHelloErrCodeNotZero, Code: msg.Hello.Code}
			}
			if msg.Hello.SessionID == nil {
				return "", 0, &WaitHelloError{Kind: WaitHelloErrNoSessionID}
			}
			sn := uint64(0)
			if resume != nil {
				sn = resume.SN
			}
			return *msg.Hello.SessionID, sn, nil

		case MessageResumeACK:
			if resume == nil {
				return "", 0, &WaitHelloError{Kind: WaitHelloErrMessageNotHello}
			}
			return resume.SessionID, resume.SN, nil

		case MessageReconnect:
			return "", 0, &WaitHelloError{Kind: WaitHelloErrReconnectRejected, Code: msg.Reconnect.Code}

		default:
			return "", 0, &WaitHelloError{Kind: WaitHelloErrMessageNotHello}
		}
	}
}

type connMode int

const (
	modeStreaming connMode = iota
	modeTimeout
)

type readResult struct {
	msg Message
	err error
}

// watchPongDeadline watches a pinger's deadline and signals missed on
// deadline whenever it elapses without having been cleared or moved.
// It idles until the deadline next changes after firing, so it never
// fires twice for the same deadline.
func watchPongDeadline(ctx context.Context, p *pinger, missed chan<- struct{}) {
	for {
		deadline, changed := p.deadline.changed()
		if deadline.IsZero() {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				continue
			}
		}

		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-changed:
			timer.Stop()
			continue
		case <-timer.C:
			select {
			case missed <- struct{}{}:
			case <-ctx.Done():
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-changed:
			}
		}
	}
}

// runConnectedLoop drives the Streaming/Timeout half of the lifecycle: a
// single-goroutine state machine fed by a reader goroutine and a pinger
// running in the background, deciding when a missed pong demotes the
// link to fast-ping Timeout mode, and when Timeout mode's own absolute
// deadline expires and the link must be dropped and resumed from
// scratch.
func (c *Client) runConnectedLoop(ctx context.Context, stream *messageStream, sessionID string, sn uint64, out chan<- Event) *EventStreamError {
	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	msgCh := make(chan readResult)
	go func() {
		for {
			msg, err := stream.next()
			if err != nil {
				var te *TransportError
				if errors.As(err, &te) && !te.NeedStop() {
					if c.errLimiter.Allow() {
						c.logger.Debug("dropped non-fatal gateway frame", "error", err)
					}
					continue
				}
			}
			select {
			case msgCh <- readResult{msg, err}:
			case <-loopCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	buf := newEventBuffer()
	runningSN := sn
	snWatch := newWatch(sn)
	p := newPinger(stream, snWatch)

	resume := func() *ResumeState {
		return &ResumeState{SN: runningSN, SessionID: sessionID}
	}

	missedCh := make(chan struct{}, 1)
	go watchPongDeadline(loopCtx, p, missedCh)

	pingCtx, cancelPing := context.WithCancel(loopCtx)
	pingDone := make(chan error, 1)
	go func() { pingDone <- p.runStreaming(pingCtx) }()
	mode := modeStreaming

	var timeoutAbsTimer *time.Timer
	stopTimeoutAbsTimer := func() {
		if timeoutAbsTimer != nil {
			timeoutAbsTimer.Stop()
			timeoutAbsTimer = nil
		}
	}
	defer stopTimeoutAbsTimer()

	restartPinger := func(newMode connMode) {
		cancelPing()
		<-pingDone
		pingCtx, cancelPing = context.WithCancel(loopCtx)
		mode = newMode
		if newMode == modeStreaming {
			go func() { pingDone <- p.runStreaming(pingCtx) }()
		} else {
			go func() { pingDone <- p.runTimeoutFastPing(pingCtx) }()
		}
	}
	// cancelPing is reassigned by restartPinger, so the deferred call must
	// read it through a closure rather than capture today's value.
	defer func() { cancelPing() }()

	timeoutCount := 0

	for {
		var timeoutAbsC <-chan time.Time
		if timeoutAbsTimer != nil {
			timeoutAbsC = timeoutAbsTimer.C
		}

		select {
		case <-ctx.Done():
			return &EventStreamError{Resume: resume(), Err: ctx.Err()}

		case res := <-msgCh:
			if res.err != nil {
				return &EventStreamError{Resume: resume(), Err: res.err}
			}

			// Any successfully received frame proves the link is alive,
			// regardless of type, so it clears the pong deadline and
			// resets the miss count before we dispatch on its type.
			p.clearDeadline()
			timeoutCount = 0

			switch res.msg.Type {
			case MessageEvent:
				buf.put(runningSN, Event{SN: res.msg.Event.SN, Data: res.msg.Event.Data})
				released, newSN := buf.drain(runningSN)
				runningSN = newSN
				snWatch.set(runningSN)
				for _, e := range released {
					select {
					case out <- e:
					case <-ctx.Done():
						return &EventStreamError{Resume: resume(), Err: ctx.Err()}
					}
				}
				if mode == modeTimeout {
					stopTimeoutAbsTimer()
					restartPinger(modeStreaming)
				}

			case MessageReconnect:
				return &EventStreamError{
					Resume: resume(),
					Err:    fmt.Errorf("gateway requested reconnect: code %d: %s", res.msg.Reconnect.Code, res.msg.Reconnect.Err),
				}

			default:
				// Any non-Event, non-Reconnect frame recovers the link out
				// of Timeout mode: the fast pings are being answered, so
				// there's no reason to keep racing the absolute deadline.
				if mode == modeTimeout {
					stopTimeoutAbsTimer()
					restartPinger(modeStreaming)
				}
			}

		case <-missedCh:
			if mode == modeStreaming {
				timeoutCount++
				if timeoutCount >= streamingMaxPongTimeouts {
					c.logger.Warn("gateway missed consecutive pongs, entering timeout state", "count", timeoutCount)
					restartPinger(modeTimeout)
					timeoutAbsTimer = time.NewTimer(pongTimeout)
				}
			}

		case <-timeoutAbsC:
			return &EventStreamError{Resume: resume(), Err: fmt.Errorf("gateway pong timeout exceeded, reconnecting")}
		}
	}
}
