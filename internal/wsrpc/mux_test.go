package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingWriter struct {
	mu       sync.Mutex
	sent     []request
	fail     bool
	failures int
}

func (w *recordingWriter) WriteMessage(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broken pipe")
	}
	if w.failures > 0 {
		w.failures--
		return errors.New("write timeout")
	}
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	w.sent = append(w.sent, req)
	return nil
}

func (w *recordingWriter) requests() []request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]request(nil), w.sent...)
}

func TestMuxQueuesUntilAttachedAndFlushesInOrder(t *testing.T) {
	m := NewMux(nil)

	ids := make([]uint64, 0, 3)
	for _, tag := range []Tag{{Kind: TagHeads}, {Kind: TagTransferIn}, {Kind: TagTransferOut}} {
		id, err := m.Subscribe(tag, "logs")
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		ids = append(ids, id)
	}
	if m.Queued() != 3 {
		t.Fatalf("queued = %d", m.Queued())
	}

	w := &recordingWriter{}
	m.Attach(w)
	sent := w.requests()
	if len(sent) != 3 {
		t.Fatalf("flushed %d", len(sent))
	}
	for i, req := range sent {
		if req.ID != ids[i] {
			t.Fatalf("flush order: got id %d at %d, want %d", req.ID, i, ids[i])
		}
		if req.Method != "eth_subscribe" || req.JSONRPC != "2.0" {
			t.Fatalf("request = %+v", req)
		}
	}
	if ids[0] >= ids[1] || ids[1] >= ids[2] {
		t.Fatalf("ids not increasing: %v", ids)
	}
	if m.Queued() != 0 {
		t.Fatalf("outbox not drained")
	}
}

func TestMuxWriteFailureRequeues(t *testing.T) {
	m := NewMux(nil)
	m.Attach(&recordingWriter{fail: true})

	if _, err := m.RequestReceipt("0xaa"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.Queued() != 1 {
		t.Fatalf("failed write should be queued, outbox = %d", m.Queued())
	}

	w := &recordingWriter{}
	m.Attach(w)
	if len(w.requests()) != 1 || w.requests()[0].Method != "eth_getTransactionReceipt" {
		t.Fatalf("requeued request not flushed: %+v", w.requests())
	}
}

func TestMuxKeepsOrderAfterFailedWrite(t *testing.T) {
	m := NewMux(nil)
	w := &recordingWriter{failures: 1}
	m.Attach(w)

	first, err := m.RequestReceipt("0xaa")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.Queued() != 1 {
		t.Fatalf("outbox = %d after failed write", m.Queued())
	}
	second, err := m.RequestReceipt("0xbb")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	sent := w.requests()
	if len(sent) != 2 {
		t.Fatalf("written %d, want 2", len(sent))
	}
	if sent[0].ID != first || sent[1].ID != second {
		t.Fatalf("write order = [%d %d], want [%d %d]", sent[0].ID, sent[1].ID, first, second)
	}
	if m.Queued() != 0 {
		t.Fatalf("outbox = %d, want 0", m.Queued())
	}
}

func TestMuxSubscriptionAckAndPush(t *testing.T) {
	m := NewMux(nil)
	m.Attach(&recordingWriter{})

	id, err := m.Subscribe(Tag{Kind: TagSwapByRecipient}, "logs", map[string]interface{}{"topics": []interface{}{}})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev, err := m.Dispatch([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":"0xsub1"}`, id)))
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ev.Kind != EventSubscribed || ev.SubscriptionID != "0xsub1" || ev.Tag.Kind != TagSwapByRecipient {
		t.Fatalf("ack event = %+v", ev)
	}
	if m.Pending() != 0 {
		t.Fatalf("ack should clear pending")
	}

	ev, err = m.Dispatch([]byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub1","result":{"address":"0x01"}}}`))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if ev.Kind != EventPush || ev.Tag.Kind != TagSwapByRecipient {
		t.Fatalf("push event = %+v", ev)
	}
	if string(ev.Result) != `{"address":"0x01"}` {
		t.Fatalf("push result = %s", ev.Result)
	}

	m.Detach()
	if _, err := m.Dispatch([]byte(`{"method":"eth_subscription","params":{"subscription":"0xsub1","result":{}}}`)); !errors.Is(err, ErrUnknownSubscription) {
		t.Fatalf("binding should be cleared on detach, got %v", err)
	}
}

func TestMuxReceiptForwarding(t *testing.T) {
	m := NewMux(nil)
	m.Attach(&recordingWriter{})

	id, _ := m.RequestReceipt("0xtx1")
	ev, err := m.Dispatch([]byte(fmt.Sprintf(`{"id":%d,"result":{"transactionHash":"0xtx1","logs":[]}}`, id)))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ev.Kind != EventReceipt || ev.TxHash != "0xtx1" {
		t.Fatalf("receipt event = %+v", ev)
	}

	id, _ = m.RequestReceipt("0xtx2")
	ev, err = m.Dispatch([]byte(fmt.Sprintf(`{"id":%d,"result":null}`, id)))
	if err != nil {
		t.Fatalf("dispatch null: %v", err)
	}
	if ev.Kind != EventNone {
		t.Fatalf("null receipt should be dropped, got %+v", ev)
	}
	if m.Pending() != 0 {
		t.Fatalf("pending = %d", m.Pending())
	}
}

func TestMuxCallOutOfOrderReplies(t *testing.T) {
	m := NewMux(nil)
	w := &recordingWriter{}
	m.Attach(w)

	type result struct {
		raw string
		err error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)
	go func() {
		raw, err := m.Call(context.Background(), "eth_call", []interface{}{}, CallSymbol("0xt"))
		first <- result{string(raw), err}
	}()
	waitFor(t, func() bool { return len(w.requests()) == 1 })
	go func() {
		raw, err := m.Call(context.Background(), "eth_call", []interface{}{}, CallDecimals("0xt"))
		second <- result{string(raw), err}
	}()
	waitFor(t, func() bool { return len(w.requests()) == 2 })

	sent := w.requests()
	if _, err := m.Dispatch([]byte(fmt.Sprintf(`{"id":%d,"result":"0x12"}`, sent[1].ID))); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, err := m.Dispatch([]byte(fmt.Sprintf(`{"id":%d,"result":"0x34"}`, sent[0].ID))); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if r := <-first; r.err != nil || r.raw != `"0x34"` {
		t.Fatalf("first = %+v", r)
	}
	if r := <-second; r.err != nil || r.raw != `"0x12"` {
		t.Fatalf("second = %+v", r)
	}
}

func TestMuxCallRejectedOnDetach(t *testing.T) {
	m := NewMux(nil)
	w := &recordingWriter{}
	m.Attach(w)

	done := make(chan error, 1)
	go func() {
		_, err := m.Call(context.Background(), "eth_call", []interface{}{}, CallSymbol("0xt"))
		done <- err
	}()
	waitFor(t, func() bool { return len(w.requests()) == 1 })
	m.Detach()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionLost) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("call not rejected")
	}
}

func TestMuxCallContextTimeout(t *testing.T) {
	m := NewMux(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Call(ctx, "eth_call", []interface{}{}, CallDecimals("0xt"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if m.Pending() != 0 {
		t.Fatalf("timed out call left pending")
	}
}

func TestMuxRPCErrorReply(t *testing.T) {
	m := NewMux(nil)
	m.Attach(&recordingWriter{})

	id, _ := m.Subscribe(Tag{Kind: TagHeads}, "newHeads")
	ev, err := m.Dispatch([]byte(fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":"too many subscriptions"}}`, id)))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ev.Kind != EventRPCError || ev.Err == nil {
		t.Fatalf("event = %+v", ev)
	}
}

func TestMuxDropsMalformedFrames(t *testing.T) {
	m := NewMux(nil)
	for _, frame := range []string{`not json`, `{"jsonrpc":"2.0"}`, `{"id":null,"result":"0x"}`, `{"method":"eth_subscription"}`} {
		if _, err := m.Dispatch([]byte(frame)); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("frame %q: err = %v", frame, err)
		}
	}
	ev, err := m.Dispatch([]byte(`{"id":999,"result":"0x"}`))
	if err != nil || ev.Kind != EventNone {
		t.Fatalf("unknown id: %+v %v", ev, err)
	}
}

func TestSubscribeRejectsNonSubscriptionTag(t *testing.T) {
	m := NewMux(nil)
	if _, err := m.Subscribe(Tag{Kind: TagReceipt}); err == nil {
		t.Fatalf("expected error")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}
