package stream

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/finsight/realtime/internal/mux"
)

// DefaultMessageType is the frame type carrying streamed analysis content.
const DefaultMessageType = "analysis.stream"

// Config configures an Aggregator.
type Config struct {
	// MessageType is the frame type to consume. Defaults to DefaultMessageType.
	MessageType string

	// OnChunk is invoked synchronously for each content chunk, in arrival
	// order. One invocation per frame; chunks are never coalesced.
	OnChunk func(content string)

	// OnComplete is invoked when the finished marker arrives. Optional.
	OnComplete func()
}

// chunkPayload is the wire payload of a stream frame.
type chunkPayload struct {
	Content  string `json:"content"`
	Finished bool   `json:"finished"`
}

// Aggregator consumes one logical stream of chunked content at a time.
// Starting a new stream while one is active tears the old one down first.
type Aggregator struct {
	cfg    Config
	m      mux.Mux
	logger *slog.Logger

	mu        sync.Mutex
	streaming bool
	cancel    mux.UnsubscribeFunc
}

// NewAggregator creates a stream aggregator on top of the multiplexer.
func NewAggregator(m mux.Mux, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MessageType == "" {
		cfg.MessageType = DefaultMessageType
	}
	return &Aggregator{
		cfg:    cfg,
		m:      m,
		logger: logger,
	}
}

// Start begins consuming stream frames. An active stream is stopped first;
// there is never a silent double-subscription.
func (a *Aggregator) Start() {
	a.mu.Lock()
	prev := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if prev != nil {
		prev()
	}

	// The flag goes up before registration: a finished marker dispatched
	// while Subscribe is still returning must not be overwritten.
	a.mu.Lock()
	a.streaming = true
	a.mu.Unlock()

	cancel := a.m.Subscribe(a.cfg.MessageType, a.onFrame)

	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.logger.Debug("stream started", "type", a.cfg.MessageType)
}

// Stop releases the underlying subscription. Idempotent; safe to call when
// never started.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.streaming = false
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		a.logger.Debug("stream stopped", "type", a.cfg.MessageType)
	}
}

// IsStreaming reports whether a stream is active. The flag clears on the
// finished marker even though the subscription stays registered.
func (a *Aggregator) IsStreaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streaming
}

// onFrame handles one stream frame. The finished marker clears the streaming
// flag but does not release the subscription; the owner keeps explicit
// control of resource release via Stop.
func (a *Aggregator) onFrame(f mux.Frame) {
	var p chunkPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		a.logger.Warn("failed to parse stream chunk", "error", err)
		return
	}

	if p.Content != "" && a.cfg.OnChunk != nil {
		a.cfg.OnChunk(p.Content)
	}

	if p.Finished {
		a.mu.Lock()
		a.streaming = false
		a.mu.Unlock()

		if a.cfg.OnComplete != nil {
			a.cfg.OnComplete()
		}
	}
}
