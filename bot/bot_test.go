package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/aviarybot/aviary/api"
	"github.com/aviarybot/aviary/filter"
	"github.com/aviarybot/aviary/gateway"
)

type captureSubscriber struct {
	name    string
	loaded  chan struct{}
	events  chan gateway.Event
}

func newCaptureSubscriber(name string) *captureSubscriber {
	return &captureSubscriber{name: name, loaded: make(chan struct{}, 1), events: make(chan gateway.Event, 16)}
}

func (s *captureSubscriber) Name() string { return s.name }

func (s *captureSubscriber) OnLoaded(context.Context) {
	select {
	case s.loaded <- struct{}{}:
	default:
	}
}

func (s *captureSubscriber) OnEvent(_ context.Context, e gateway.Event) {
	s.events <- e
}

// startFakeGateway spins up a websocket server that performs the Hello
// handshake and then streams two events, standing in for a real gateway.
func startFakeGateway(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		sessionID := "sess-1"
		helloRaw := mustEncodeHello(sessionID)
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, helloRaw))

		for _, sn := range []uint64{1, 2} {
			raw := mustEncodeEvent(sn)
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, raw))
		}

		// Keep the connection open long enough for the test to observe
		// the events and then tear down via context cancellation.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestBotDeliversEventsToSubscriber(t *testing.T) {
	gwServer := startFakeGateway(t)
	defer gwServer.Close()

	wsURL := "ws" + strings.TrimPrefix(gwServer.URL, "http") + "/?compress=0"

	indexServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fmt.Sprintf(`{"code":0,"message":"","data":{"url":%q}}`, wsURL)))
	}))
	defer indexServer.Close()

	apiClient := api.NewClient(indexServer.URL, "tok-123", nil)
	b := New(apiClient, "tok-123", nil)

	sub := newCaptureSubscriber("capture")
	b.Subscribe(sub, filter.Accept)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case <-sub.loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnLoaded")
	}

	var got []uint64
	for i := 0; i < 2; i++ {
		select {
		case e := <-sub.events:
			got = append(got, e.SN)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	require.Equal(t, []uint64{1, 2}, got)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bot.Run to stop")
	}
}

func mustEncodeHello(sessionID string) []byte {
	return []byte(fmt.Sprintf(`{"s":1,"d":{"code":0,"session_id":%q}}`, sessionID))
}

func mustEncodeEvent(sn uint64) []byte {
	return []byte(fmt.Sprintf(`{"s":0,"sn":%d,"d":{}}`, sn))
}
