package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverMode int

const (
	modeServe serverMode = iota
	modeCloseAfterPush
	modeSilent
)

type testNode struct {
	srv           *httptest.Server
	conns         atomic.Int32
	done          chan struct{}
	beforeUpgrade atomic.Pointer[func()]
}

func newTestNode(t *testing.T, mode serverMode) *testNode {
	t.Helper()
	node := &testNode{done: make(chan struct{})}
	upgrader := websocket.Upgrader{}
	node.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hook := node.beforeUpgrade.Load(); hook != nil {
			(*hook)()
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := node.conns.Add(1)

		if mode == modeSilent {
			<-node.done
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		subID := fmt.Sprintf("0xsub%d", n)
		ack := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%q}`, req.ID, subID)
		push := fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":%q,"result":{"number":"0x%x"}}}`, subID, n)
		if conn.WriteMessage(websocket.TextMessage, []byte(ack)) != nil {
			return
		}
		if conn.WriteMessage(websocket.TextMessage, []byte(push)) != nil {
			return
		}
		if mode == modeCloseAfterPush {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(node.srv.Close)
	t.Cleanup(func() { close(node.done) })
	return node
}

func (n *testNode) url() string {
	return "ws" + strings.TrimPrefix(n.srv.URL, "http")
}

type testHandler struct {
	mux    *Mux
	opens  atomic.Int32
	events chan Event
}

func (h *testHandler) OnOpen(ctx context.Context) {
	h.opens.Add(1)
	_, _ = h.mux.Subscribe(Tag{Kind: TagHeads}, "newHeads")
}

func (h *testHandler) OnFrame(ctx context.Context, data []byte) {
	ev, err := h.mux.Dispatch(data)
	if err == nil && ev.Kind == EventPush {
		h.events <- ev
	}
}

func startClient(t *testing.T, cfg Config) (*Client, *testHandler) {
	t.Helper()
	mux := NewMux(nil)
	handler := &testHandler{mux: mux, events: make(chan Event, 16)}
	client := NewClient(cfg, mux, handler, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- client.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-finished:
			assert.True(t, errors.Is(err, context.Canceled), "run returned %v", err)
		case <-time.After(2 * time.Second):
			t.Errorf("client did not stop")
		}
	})
	return client, handler
}

func nextPush(t *testing.T, h *testHandler) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("no push received")
		return Event{}
	}
}

func TestClientSubscribesAndReceivesPushes(t *testing.T) {
	node := newTestNode(t, modeServe)
	client, handler := startClient(t, Config{URL: node.url(), BackoffFloor: 10 * time.Millisecond})

	ev := nextPush(t, handler)
	assert.Equal(t, TagHeads, ev.Tag.Kind)
	assert.Equal(t, "0xsub1", ev.SubscriptionID)
	assert.JSONEq(t, `{"number":"0x1"}`, string(ev.Result))
	assert.Equal(t, StateOpen, client.State())
}

func TestClientReconnectsAfterServerClose(t *testing.T) {
	node := newTestNode(t, modeCloseAfterPush)
	_, handler := startClient(t, Config{
		URL:          node.url(),
		BackoffFloor: 10 * time.Millisecond,
		BackoffCap:   50 * time.Millisecond,
	})

	first := nextPush(t, handler)
	second := nextPush(t, handler)
	assert.Equal(t, "0xsub1", first.SubscriptionID)
	assert.Equal(t, "0xsub2", second.SubscriptionID)
	assert.GreaterOrEqual(t, handler.opens.Load(), int32(2))
}

func TestClientHeartbeatLossForcesReconnect(t *testing.T) {
	node := newTestNode(t, modeSilent)
	_, handler := startClient(t, Config{
		URL:          node.url(),
		PingInterval: 30 * time.Millisecond,
		BackoffFloor: 10 * time.Millisecond,
		BackoffCap:   20 * time.Millisecond,
	})

	require.Eventually(t, func() bool {
		return handler.opens.Load() >= 2 && node.conns.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClientReconnectRequest(t *testing.T) {
	node := newTestNode(t, modeServe)
	client, handler := startClient(t, Config{URL: node.url(), BackoffFloor: 10 * time.Millisecond})

	nextPush(t, handler)
	client.Reconnect("wallets changed")

	ev := nextPush(t, handler)
	assert.Equal(t, "0xsub2", ev.SubscriptionID)
	assert.Equal(t, int32(2), node.conns.Load())
}

func TestClientReconnectDuringHandshakeKeepsNewSession(t *testing.T) {
	node := newTestNode(t, modeServe)
	ready := make(chan *Client, 1)
	var once sync.Once
	hook := func() {
		once.Do(func() {
			c := <-ready
			c.Reconnect("wallets changed")
		})
	}
	node.beforeUpgrade.Store(&hook)

	client, handler := startClient(t, Config{URL: node.url(), BackoffFloor: 10 * time.Millisecond})
	ready <- client

	ev := nextPush(t, handler)
	assert.Equal(t, "0xsub1", ev.SubscriptionID)
	require.Never(t, func() bool {
		return node.conns.Load() > 1
	}, 200*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, int32(1), handler.opens.Load())
	assert.Equal(t, StateOpen, client.State())
}

func TestClientKeepsRetryingUnreachableNode(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	client, _ := startClient(t, Config{URL: url, BackoffFloor: 5 * time.Millisecond, BackoffCap: 10 * time.Millisecond})
	require.Eventually(t, func() bool {
		s := client.State()
		return s == StateBackoff || s == StateConnecting
	}, time.Second, 5*time.Millisecond)
}
