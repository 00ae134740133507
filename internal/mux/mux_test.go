package mux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/finsight/realtime/internal/transport"
)

// fakeClient is an in-memory transport.Client for driving the multiplexer.
type fakeClient struct {
	mu        sync.Mutex
	connected bool
	sent      [][]byte
	hooks     []func()

	messages chan transport.Message
	errs     chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		connected: true,
		messages:  make(chan transport.Message, 100),
		errs:      make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeClient) Messages() <-chan transport.Message { return f.messages }
func (f *fakeClient) Errors() <-chan error               { return f.errs }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) OnReconnect(fn func()) {
	f.mu.Lock()
	f.hooks = append(f.hooks, fn)
	f.mu.Unlock()
}

func (f *fakeClient) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeClient) fireReconnect() {
	f.mu.Lock()
	hooks := make([]func(), len(f.hooks))
	copy(hooks, f.hooks)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (f *fakeClient) deliver(raw string) {
	f.messages <- transport.Message{Data: []byte(raw), ReceivedAt: time.Now()}
}

// sentFrames decodes every frame the fake transport saw.
func (f *fakeClient) sentFrames(t *testing.T) []envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	frames := make([]envelope, 0, len(f.sent))
	for _, b := range f.sent {
		var env envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("sent frame is not valid JSON: %v", err)
		}
		frames = append(frames, env)
	}
	return frames
}

// countControl counts subscribe/unsubscribe frames for a message type.
func (f *fakeClient) countControl(t *testing.T, ctrl, messageType string) int {
	t.Helper()
	n := 0
	for _, env := range f.sentFrames(t) {
		if env.Type != ctrl {
			continue
		}
		var p subscribePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("control payload is not valid JSON: %v", err)
		}
		if p.Type == messageType {
			n++
		}
	}
	return n
}

func startMux(t *testing.T, client transport.Client) Mux {
	t.Helper()
	m := NewMux(client, nil)
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		m.Stop(stopCtx)
	})
	return m
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMux_FanOutOrder(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	var mu sync.Mutex
	var order []int

	for i := 0; i < 3; i++ {
		i := i
		m.Subscribe("market.tick", func(f Frame) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	client.deliver(`{"type": "market.tick", "data": {"symbol": "AAPL"}}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, "expected 3 handler invocations")

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Errorf("invocation %d was handler %d, want registration order", i, got)
		}
	}
}

func TestMux_FramePayload(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	var mu sync.Mutex
	var got Frame

	m.Subscribe("market.tick", func(f Frame) {
		mu.Lock()
		got = f
		mu.Unlock()
	})

	client.deliver(`{"type": "market.tick", "data": {"symbol": "AAPL", "price": 187.42}}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got.Type != ""
	}, "expected frame delivery")

	mu.Lock()
	defer mu.Unlock()
	if got.Type != "market.tick" {
		t.Errorf("Type = %q, want market.tick", got.Type)
	}
	var payload struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", payload.Symbol)
	}
	if got.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should not be zero")
	}
}

func TestMux_UnsubscribeHandle(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	var mu sync.Mutex
	counts := make([]int, 2)

	cancel0 := m.Subscribe("market.tick", func(f Frame) {
		mu.Lock()
		counts[0]++
		mu.Unlock()
	})
	m.Subscribe("market.tick", func(f Frame) {
		mu.Lock()
		counts[1]++
		mu.Unlock()
	})

	client.deliver(`{"type": "market.tick", "data": {}}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[1] == 1
	}, "expected first delivery")

	cancel0()
	// Second call is a no-op
	cancel0()

	client.deliver(`{"type": "market.tick", "data": {}}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[1] == 2
	}, "expected second delivery to surviving handler")

	mu.Lock()
	defer mu.Unlock()
	if counts[0] != 1 {
		t.Errorf("released handler invoked %d times after first frame, want 1", counts[0])
	}
}

func TestMux_KeyCollapse(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	params := map[string]any{"symbol": "AAPL"}
	cancel1 := m.SubscribeWithParams("agent.thought", params, func(Frame) {})
	cancel2 := m.SubscribeWithParams("agent.thought", map[string]any{"symbol": "AAPL"}, func(Frame) {})

	if n := client.countControl(t, typeSubscribe, "agent.thought"); n != 1 {
		t.Errorf("subscribe frames = %d, want 1 (second subscribe is a local no-op)", n)
	}

	s := m.Stats()
	if s.ActiveKeys != 1 {
		t.Errorf("ActiveKeys = %d, want 1", s.ActiveKeys)
	}
	if s.ActiveHandlers != 2 {
		t.Errorf("ActiveHandlers = %d, want 2", s.ActiveHandlers)
	}

	// Releasing one of two handles keeps the network registration alive.
	cancel1()
	if n := client.countControl(t, typeUnsubscribe, "agent.thought"); n != 0 {
		t.Errorf("unsubscribe frames after first release = %d, want 0", n)
	}

	// Last release tears down the network registration.
	cancel2()
	if n := client.countControl(t, typeUnsubscribe, "agent.thought"); n != 1 {
		t.Errorf("unsubscribe frames after last release = %d, want 1", n)
	}
}

func TestMux_BulkUnsubscribePrefix(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	var mu sync.Mutex
	invoked := 0
	handler := func(Frame) {
		mu.Lock()
		invoked++
		mu.Unlock()
	}

	m.Subscribe("agent.thought", handler)
	m.SubscribeWithParams("agent.thought", map[string]any{"depth": 1}, handler)
	m.Subscribe("market.tick", handler)

	// Prefix form removes every agent.thought registration.
	m.Unsubscribe("agent.thought", nil)

	s := m.Stats()
	if s.ActiveHandlers != 1 {
		t.Errorf("ActiveHandlers = %d, want 1", s.ActiveHandlers)
	}
	if s.ActiveKeys != 1 {
		t.Errorf("ActiveKeys = %d, want 1", s.ActiveKeys)
	}

	client.deliver(`{"type": "agent.thought", "data": {}}`)
	client.deliver(`{"type": "market.tick", "data": {}}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return invoked == 1
	}, "expected only the market.tick handler to fire")
}

func TestMux_BulkUnsubscribeExactParams(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	m.SubscribeWithParams("market.depth", map[string]any{"symbol": "AAPL"}, func(Frame) {})
	m.SubscribeWithParams("market.depth", map[string]any{"symbol": "MSFT"}, func(Frame) {})

	m.Unsubscribe("market.depth", map[string]any{"symbol": "AAPL"})

	s := m.Stats()
	if s.ActiveHandlers != 1 {
		t.Errorf("ActiveHandlers = %d, want 1", s.ActiveHandlers)
	}
}

func TestMux_UnknownUnsubscribeTargetIsNoOp(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	// Nothing registered; must not panic or send anything.
	m.Unsubscribe("market.tick", nil)

	if n := client.countControl(t, typeUnsubscribe, "market.tick"); n != 0 {
		t.Errorf("unsubscribe frames = %d, want 0", n)
	}
}

func TestMux_HandlerPanicIsolated(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	var mu sync.Mutex
	survived := 0

	m.Subscribe("market.tick", func(Frame) {
		panic("boom")
	})
	m.Subscribe("market.tick", func(Frame) {
		mu.Lock()
		survived++
		mu.Unlock()
	})

	client.deliver(`{"type": "market.tick", "data": {}}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return survived == 1
	}, "expected the second handler to run despite the first panicking")

	if s := m.Stats(); s.HandlerFailures != 1 {
		t.Errorf("HandlerFailures = %d, want 1", s.HandlerFailures)
	}
}

func TestMux_SendNotConnected(t *testing.T) {
	client := newFakeClient()
	client.setConnected(false)
	m := startMux(t, client)

	err := m.Send("order.cancel", map[string]any{"id": "o-1"})
	if err == nil {
		t.Fatal("expected error sending while disconnected")
	}
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("error = %v, want wrapped ErrNotConnected", err)
	}
}

func TestMux_SendNotConnectedBeforeMarshal(t *testing.T) {
	client := newFakeClient()
	client.setConnected(false)
	m := startMux(t, client)

	// An unserializable payload still surfaces the transport state: the
	// connectivity check comes before any marshaling.
	err := m.Send("order.cancel", func() {})
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("error = %v, want wrapped ErrNotConnected", err)
	}
}

func TestMux_SendEnvelope(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	if err := m.Send("watchlist.add", map[string]any{"symbol": "NVDA"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	frames := client.sentFrames(t)
	if len(frames) != 1 {
		t.Fatalf("sent frames = %d, want 1", len(frames))
	}
	if frames[0].Type != "watchlist.add" {
		t.Errorf("Type = %q, want watchlist.add", frames[0].Type)
	}
	if string(frames[0].Data) != `{"symbol":"NVDA"}` {
		t.Errorf("Data = %s, want {\"symbol\":\"NVDA\"}", frames[0].Data)
	}
}

func TestMux_SubscribeBeforeConnect(t *testing.T) {
	client := newFakeClient()
	client.setConnected(false)
	m := startMux(t, client)

	var mu sync.Mutex
	invoked := 0
	m.Subscribe("market.tick", func(Frame) {
		mu.Lock()
		invoked++
		mu.Unlock()
	})

	// The network-level subscribe could not go out; the local registration
	// still delivers once frames start arriving.
	client.setConnected(true)
	client.fireReconnect()

	if n := client.countControl(t, typeSubscribe, "market.tick"); n != 1 {
		t.Errorf("subscribe frames after rehydration = %d, want 1", n)
	}

	client.deliver(`{"type": "market.tick", "data": {}}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return invoked == 1
	}, "expected delivery after connect")
}

func TestMux_RehydrateResendsLiveKeys(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	m.Subscribe("market.tick", func(Frame) {})
	m.SubscribeWithParams("market.depth", map[string]any{"symbol": "AAPL"}, func(Frame) {})
	cancel := m.Subscribe("agent.thought", func(Frame) {})
	cancel()

	client.fireReconnect()

	// One initial + one rehydrated subscribe per live key; the released key
	// is not rehydrated.
	if n := client.countControl(t, typeSubscribe, "market.tick"); n != 2 {
		t.Errorf("market.tick subscribe frames = %d, want 2", n)
	}
	if n := client.countControl(t, typeSubscribe, "market.depth"); n != 2 {
		t.Errorf("market.depth subscribe frames = %d, want 2", n)
	}
	if n := client.countControl(t, typeSubscribe, "agent.thought"); n != 1 {
		t.Errorf("agent.thought subscribe frames = %d, want 1 (not rehydrated)", n)
	}
}

func TestMux_ParseErrorCounted(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	client.deliver(`not json`)
	client.deliver(`{"no_type": true}`)

	waitFor(t, func() bool {
		return m.Stats().ParseErrors == 2
	}, "expected 2 parse errors")
}

func TestMux_DeliveryOrderPreserved(t *testing.T) {
	client := newFakeClient()
	m := startMux(t, client)

	var mu sync.Mutex
	var got []string

	m.Subscribe("market.tick", func(f Frame) {
		var p struct {
			Seq int `json:"seq"`
		}
		json.Unmarshal(f.Data, &p)
		mu.Lock()
		got = append(got, fmt.Sprintf("%d", p.Seq))
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		client.deliver(fmt.Sprintf(`{"type": "market.tick", "data": {"seq": %d}}`, i))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	}, "expected 10 deliveries")

	mu.Lock()
	defer mu.Unlock()
	for i, s := range got {
		if s != fmt.Sprintf("%d", i) {
			t.Fatalf("delivery %d = %s, want arrival order preserved", i, s)
		}
	}
}
