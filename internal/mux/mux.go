package mux

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/finsight/realtime/internal/transport"
)

// Mux routes inbound frames by message type to registered handlers and owns
// the server-side subscription lifecycle.
type Mux interface {
	// Start begins dispatching frames from the transport.
	Start(ctx context.Context) error

	// Stop shuts down the dispatch loop. Registered handlers are not torn
	// down; owning scopes release their own handles.
	Stop(ctx context.Context) error

	// Subscribe registers handler for every inbound frame of the given type.
	// Multiple subscribers to the same type all receive each frame, in
	// registration order. Safe to call before the transport is connected;
	// delivery begins once frames arrive. The returned handle releases only
	// this registration.
	Subscribe(messageType string, handler Handler) UnsubscribeFunc

	// SubscribeWithParams is Subscribe with server-side subscription
	// parameters. Registrations with the same type and logically identical
	// params share one network-level subscription.
	SubscribeWithParams(messageType string, params map[string]any, handler Handler) UnsubscribeFunc

	// Unsubscribe bulk-removes every registration whose key starts with
	// messageType; with params set, only the exact derived key is removed.
	// Coarser than handle-based release: two logically distinct
	// subscriptions sharing a type prefix both match. Callers that need
	// precision use the handle returned by Subscribe.
	Unsubscribe(messageType string, params map[string]any)

	// Send serializes data into the wire envelope and forwards it to the
	// transport. A send while disconnected returns an error; it is never
	// silently dropped.
	Send(messageType string, data any) error

	// Stats returns current dispatch statistics.
	Stats() Stats
}

// record is one handler registration in the registry.
type record struct {
	key         string
	messageType string
	handler     Handler

	// guard serializes delivery against release: release acquires it, so
	// once a release returns no later frame can reach the handler, and an
	// in-flight delivery always completes first.
	guard   sync.Mutex
	removed bool
}

// keyState tracks the ref-counted network-level subscription for one key.
type keyState struct {
	messageType string
	params      json.RawMessage
	refs        int
}

// mux is the internal implementation.
type mux struct {
	client transport.Client
	logger *slog.Logger

	// Registry
	mu      sync.RWMutex
	records map[string][]*record // message type -> registrations, in order
	keys    map[string]*keyState // derived key -> network subscription

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	statsMu         sync.Mutex
	received        int64
	dispatched      int64
	parseErrors     int64
	unknownTypes    int64
	handlerFailures int64
}

// NewMux creates a new multiplexer over the given transport. The mux
// registers itself for inbound delivery and reconnect rehydration exactly
// once, here.
func NewMux(client transport.Client, logger *slog.Logger) Mux {
	if logger == nil {
		logger = slog.Default()
	}

	m := &mux{
		client:  client,
		logger:  logger,
		records: make(map[string][]*record),
		keys:    make(map[string]*keyState),
	}

	client.OnReconnect(m.rehydrate)

	return m
}

// Start begins the dispatch loop.
func (m *mux) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.dispatchLoop()

	m.logger.Info("multiplexer started")

	return nil
}

// Stop shuts down the dispatch loop.
func (m *mux) Stop(ctx context.Context) error {
	m.logger.Info("stopping multiplexer")

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("multiplexer stopped")
	case <-ctx.Done():
		m.logger.Warn("multiplexer stop timed out")
	}

	return nil
}

// Subscribe registers a handler with no parameters.
func (m *mux) Subscribe(messageType string, handler Handler) UnsubscribeFunc {
	return m.SubscribeWithParams(messageType, nil, handler)
}

// SubscribeWithParams registers a handler for a parameterized subscription.
func (m *mux) SubscribeWithParams(messageType string, params map[string]any, handler Handler) UnsubscribeFunc {
	key, canonical, err := deriveKey(messageType, params)
	if err != nil {
		m.logger.Warn("unserializable subscription params, using empty set",
			"type", messageType,
			"error", err,
		)
	}

	rec := &record{
		key:         key,
		messageType: messageType,
		handler:     handler,
	}

	m.mu.Lock()
	m.records[messageType] = append(m.records[messageType], rec)

	ks, exists := m.keys[key]
	if !exists {
		ks = &keyState{messageType: messageType, params: canonical}
		m.keys[key] = ks
	}
	ks.refs++
	m.mu.Unlock()

	// First handle for this key owns the network-level registration.
	// Duplicates are a local no-op for transport purposes.
	if !exists {
		m.sendControl(typeSubscribe, messageType, canonical)
	}

	return func() { m.release(rec) }
}

// release removes a single registration. Idempotent.
func (m *mux) release(rec *record) {
	rec.guard.Lock()
	if rec.removed {
		rec.guard.Unlock()
		return
	}
	rec.removed = true
	rec.guard.Unlock()

	m.mu.Lock()
	recs := m.records[rec.messageType]
	for i, r := range recs {
		if r == rec {
			m.records[rec.messageType] = append(recs[:i], recs[i+1:]...)
			break
		}
	}
	if len(m.records[rec.messageType]) == 0 {
		delete(m.records, rec.messageType)
	}

	var lastParams json.RawMessage
	last := false
	if ks, ok := m.keys[rec.key]; ok {
		ks.refs--
		if ks.refs <= 0 {
			delete(m.keys, rec.key)
			last = true
			lastParams = ks.params
		}
	}
	m.mu.Unlock()

	if last {
		m.sendControl(typeUnsubscribe, rec.messageType, lastParams)
	}
}

// Unsubscribe bulk-removes registrations by key prefix or exact key.
func (m *mux) Unsubscribe(messageType string, params map[string]any) {
	var exactKey string
	if params != nil {
		exactKey, _, _ = deriveKey(messageType, params)
	}

	m.mu.RLock()
	var matched []*record
	for _, recs := range m.records {
		for _, rec := range recs {
			if params != nil {
				if rec.key == exactKey {
					matched = append(matched, rec)
				}
			} else if strings.HasPrefix(rec.key, messageType) {
				matched = append(matched, rec)
			}
		}
	}
	m.mu.RUnlock()

	for _, rec := range matched {
		m.release(rec)
	}
}

// Send serializes and forwards a frame to the transport.
func (m *mux) Send(messageType string, data any) error {
	if !m.client.IsConnected() {
		return fmt.Errorf("send %s: %w", messageType, transport.ErrNotConnected)
	}

	var payload json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", messageType, err)
		}
		payload = b
	}

	b, err := json.Marshal(envelope{Type: messageType, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", messageType, err)
	}

	if err := m.client.Send(b); err != nil {
		return fmt.Errorf("send %s: %w", messageType, err)
	}

	return nil
}

// Stats returns current statistics.
func (m *mux) Stats() Stats {
	m.statsMu.Lock()
	s := Stats{
		FramesReceived:   m.received,
		FramesDispatched: m.dispatched,
		ParseErrors:      m.parseErrors,
		UnknownTypes:     m.unknownTypes,
		HandlerFailures:  m.handlerFailures,
	}
	m.statsMu.Unlock()

	m.mu.RLock()
	s.ActiveKeys = len(m.keys)
	for _, recs := range m.records {
		s.ActiveHandlers += len(recs)
	}
	m.mu.RUnlock()

	return s
}

// dispatchLoop is the single dispatch goroutine.
func (m *mux) dispatchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case msg, ok := <-m.client.Messages():
			if !ok {
				m.logger.Info("transport channel closed")
				return
			}
			m.dispatch(msg.Data, msg.ReceivedAt)
		}
	}
}

// dispatch parses one raw frame and fans it out to current subscribers in
// registration order.
func (m *mux) dispatch(data []byte, receivedAt time.Time) {
	m.statsMu.Lock()
	m.received++
	m.statsMu.Unlock()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		m.logger.Warn("failed to parse frame envelope", "error", err)
		m.statsMu.Lock()
		m.parseErrors++
		m.statsMu.Unlock()
		return
	}

	frame := Frame{
		Type:       env.Type,
		Data:       env.Data,
		ReceivedAt: receivedAt,
	}

	m.mu.RLock()
	recs := m.records[env.Type]
	snapshot := make([]*record, len(recs))
	copy(snapshot, recs)
	m.mu.RUnlock()

	if len(snapshot) == 0 {
		m.statsMu.Lock()
		m.unknownTypes++
		m.statsMu.Unlock()
		m.logger.Debug("no subscribers for frame", "type", env.Type)
		return
	}

	for _, rec := range snapshot {
		m.invoke(rec, frame)
	}
}

// invoke delivers one frame to one registration. A handler panic is contained
// here so remaining handlers for the same frame still run.
func (m *mux) invoke(rec *record, frame Frame) {
	rec.guard.Lock()
	defer rec.guard.Unlock()

	if rec.removed {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.statsMu.Lock()
			m.handlerFailures++
			m.statsMu.Unlock()
			m.logger.Error("handler failed",
				"type", frame.Type,
				"panic", r,
			)
		}
	}()

	rec.handler(frame)

	m.statsMu.Lock()
	m.dispatched++
	m.statsMu.Unlock()
}

// rehydrate re-sends subscribe frames for every live key after a reconnect.
// Frames missed while disconnected are not replayed.
func (m *mux) rehydrate() {
	m.mu.RLock()
	states := make([]*keyState, 0, len(m.keys))
	for _, ks := range m.keys {
		states = append(states, ks)
	}
	m.mu.RUnlock()

	for _, ks := range states {
		m.sendControl(typeSubscribe, ks.messageType, ks.params)
	}

	m.logger.Info("rehydrated subscriptions", "count", len(states))
}

// sendControl sends a subscribe/unsubscribe frame, best effort. A failed
// subscribe is retried by rehydration on the next reconnect.
func (m *mux) sendControl(ctrl, messageType string, params json.RawMessage) {
	err := m.Send(ctrl, subscribePayload{Type: messageType, Params: params})
	if err != nil {
		m.logger.Warn("control frame not sent",
			"ctrl", ctrl,
			"type", messageType,
			"error", err,
		)
	}
}
