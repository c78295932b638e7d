package wsrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrConnectionLost rejects calls whose socket closed before a reply arrived.
	ErrConnectionLost = errors.New("wsrpc: connection lost")
	// ErrMalformedFrame marks an inbound frame that could not be interpreted.
	ErrMalformedFrame = errors.New("wsrpc: malformed frame")
	// ErrUnknownSubscription marks a push for a subscription id that is not bound.
	ErrUnknownSubscription = errors.New("wsrpc: unknown subscription")
)

const subscriptionMethod = "eth_subscription"

// Writer sends one text frame.
type Writer interface {
	WriteMessage(data []byte) error
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type inbound struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

type reply struct {
	result json.RawMessage
	err    error
}

type pendingRequest struct {
	tag    Tag
	txHash string
	reply  chan reply
}

// EventKind classifies the outcome of dispatching one inbound frame.
type EventKind int

const (
	// EventNone means the frame was consumed internally.
	EventNone EventKind = iota
	EventSubscribed
	EventPush
	EventReceipt
	EventRPCError
)

// Event is what a dispatched frame means to the caller.
type Event struct {
	Kind           EventKind
	Tag            Tag
	SubscriptionID string
	TxHash         string
	Result         json.RawMessage
	Err            error
}

// Mux correlates JSON-RPC requests and replies over one socket at a time.
// Request ids increase monotonically for the lifetime of the Mux.
type Mux struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*pendingRequest
	subs    map[string]Tag
	outbox  [][]byte
	writer  Writer
	logger  *zap.Logger
}

func NewMux(logger *zap.Logger) *Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mux{
		pending: make(map[uint64]*pendingRequest),
		subs:    make(map[string]Tag),
		logger:  logger,
	}
}

// Send writes a request now if a socket is attached, otherwise queues it.
func (m *Mux) Send(method string, params interface{}, tag Tag) (uint64, error) {
	return m.send(method, params, &pendingRequest{tag: tag})
}

// Subscribe issues eth_subscribe with params for a subscription tag.
func (m *Mux) Subscribe(tag Tag, params ...interface{}) (uint64, error) {
	if !tag.IsSubscription() {
		return 0, fmt.Errorf("tag %s is not a subscription", tag)
	}
	return m.send("eth_subscribe", params, &pendingRequest{tag: tag})
}

// RequestReceipt fetches a receipt; the reply surfaces as an EventReceipt
// carrying txHash.
func (m *Mux) RequestReceipt(txHash string) (uint64, error) {
	return m.send("eth_getTransactionReceipt", []interface{}{txHash}, &pendingRequest{
		tag:    Tag{Kind: TagReceipt},
		txHash: txHash,
	})
}

// Call sends a request and waits for its raw result. It fails with
// ErrConnectionLost if the socket drops first.
func (m *Mux) Call(ctx context.Context, method string, params interface{}, tag Tag) (json.RawMessage, error) {
	ch := make(chan reply, 1)
	id, err := m.send(method, params, &pendingRequest{tag: tag, reply: ch})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		m.forget(id)
		return nil, ctx.Err()
	}
}

func (m *Mux) send(method string, params interface{}, p *pendingRequest) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", method, err)
	}
	m.pending[id] = p
	m.writeLocked(body)
	return id, nil
}

// writeLocked queues body behind anything still waiting and flushes, so a
// failed write never lets a later message overtake it.
func (m *Mux) writeLocked(body []byte) {
	m.outbox = append(m.outbox, body)
	m.flushLocked()
}

func (m *Mux) flushLocked() {
	if m.writer == nil {
		return
	}
	for i, body := range m.outbox {
		if err := m.writer.WriteMessage(body); err != nil {
			m.logger.Debug("write failed, queued", zap.Int("remaining", len(m.outbox)-i), zap.Error(err))
			m.outbox = m.outbox[i:]
			return
		}
	}
	m.outbox = nil
}

func (m *Mux) forget(id uint64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Attach binds a freshly opened socket and flushes the outbox in order.
func (m *Mux) Attach(w Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writer = w
	m.flushLocked()
}

// Detach drops everything tied to the closed socket: subscription
// bindings, the outbox and pending requests. Waiting calls fail with
// ErrConnectionLost.
func (m *Mux) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writer = nil
	m.outbox = nil
	m.subs = make(map[string]Tag)
	for id, p := range m.pending {
		if p.reply != nil {
			p.reply <- reply{err: ErrConnectionLost}
		}
		delete(m.pending, id)
	}
}

// Pending returns the number of requests awaiting a reply.
func (m *Mux) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Queued returns the number of messages waiting in the outbox.
func (m *Mux) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outbox)
}

// Dispatch interprets one inbound frame. Replies are matched by id only.
func (m *Mux) Dispatch(data []byte) (Event, error) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if msg.Method == subscriptionMethod {
		if msg.Params == nil || msg.Params.Subscription == "" {
			return Event{}, fmt.Errorf("%w: push without subscription", ErrMalformedFrame)
		}
		m.mu.Lock()
		tag, ok := m.subs[msg.Params.Subscription]
		m.mu.Unlock()
		if !ok {
			return Event{}, fmt.Errorf("%w: %s", ErrUnknownSubscription, msg.Params.Subscription)
		}
		return Event{
			Kind:           EventPush,
			Tag:            tag,
			SubscriptionID: msg.Params.Subscription,
			Result:         msg.Params.Result,
		}, nil
	}

	id, ok := parseID(msg.ID)
	if !ok {
		return Event{}, fmt.Errorf("%w: no id or method", ErrMalformedFrame)
	}
	m.mu.Lock()
	p, ok := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()
	if !ok {
		return Event{}, nil
	}

	if msg.Error != nil {
		if p.reply != nil {
			p.reply <- reply{err: msg.Error}
			return Event{Tag: p.tag}, nil
		}
		return Event{Kind: EventRPCError, Tag: p.tag, TxHash: p.txHash, Err: msg.Error}, nil
	}

	switch {
	case p.reply != nil:
		p.reply <- reply{result: msg.Result}
		return Event{Tag: p.tag}, nil
	case p.tag.IsSubscription():
		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil || subID == "" {
			return Event{}, fmt.Errorf("%w: subscription ack without id", ErrMalformedFrame)
		}
		m.mu.Lock()
		m.subs[subID] = p.tag
		m.mu.Unlock()
		return Event{Kind: EventSubscribed, Tag: p.tag, SubscriptionID: subID}, nil
	case p.tag.Kind == TagReceipt:
		if isNull(msg.Result) {
			return Event{Tag: p.tag, TxHash: p.txHash}, nil
		}
		return Event{Kind: EventReceipt, Tag: p.tag, TxHash: p.txHash, Result: msg.Result}, nil
	default:
		return Event{Tag: p.tag}, nil
	}
}

func parseID(raw json.RawMessage) (uint64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var id uint64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
