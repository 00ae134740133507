package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Center is the process-wide notification queue. It is constructed explicitly
// and injected into consumers; there is no package-level instance.
//
// The backing list is the single source of truth: every query view is
// recomputed from it on demand.
type Center struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	items []*item // newest first
}

// item pairs a toast with its pending auto-dismiss timer.
type item struct {
	toast        Toast
	dismissTimer *time.Timer
}

// NewCenter creates a notification center.
func NewCenter(cfg Config, logger *slog.Logger) *Center {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxVisible < 1 {
		cfg.MaxVisible = DefaultConfig().MaxVisible
	}
	if cfg.DefaultDuration == 0 {
		cfg.DefaultDuration = DefaultConfig().DefaultDuration
	}
	if cfg.RemoveDelay == 0 {
		cfg.RemoveDelay = DefaultConfig().RemoveDelay
	}
	if cfg.DefaultPosition == "" {
		cfg.DefaultPosition = DefaultConfig().DefaultPosition
	}
	return &Center{
		cfg:    cfg,
		logger: logger,
	}
}

// Show inserts a new toast at the front of the queue and returns its id.
// If the insertion pushes the queue past capacity, the oldest entry is
// hidden and removed in the same operation, with no exit delay.
func (c *Center) Show(opts Options) string {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	typ := opts.Type
	if typ == "" {
		typ = TypeInfo
	}

	pos := opts.Position
	if pos == "" {
		pos = c.cfg.DefaultPosition
	}

	duration := opts.Duration
	if duration == 0 {
		duration = c.cfg.DefaultDuration
	}

	it := &item{
		toast: Toast{
			ID:         id,
			Type:       typ,
			Title:      opts.Title,
			Message:    opts.Message,
			Duration:   duration,
			Persistent: opts.Persistent,
			Position:   pos,
			CreatedAt:  time.Now(),
			Visible:    true,
		},
	}

	// Persistent toasts ignore duration entirely.
	if !opts.Persistent {
		it.dismissTimer = time.AfterFunc(duration, func() {
			c.Hide(id)
		})
	}

	c.mu.Lock()
	c.items = append([]*item{it}, c.items...)

	// Capacity eviction: the oldest entry is dropped synchronously, the one
	// path where hide and removal are not separated by the exit delay.
	if len(c.items) > c.cfg.MaxVisible {
		oldest := c.items[len(c.items)-1]
		oldest.toast.Visible = false
		if oldest.dismissTimer != nil {
			oldest.dismissTimer.Stop()
		}
		c.items = c.items[:len(c.items)-1]

		c.logger.Debug("evicted oldest notification", "id", oldest.toast.ID)
	}
	c.mu.Unlock()

	c.logger.Debug("notification shown", "id", id, "type", typ)

	return id
}

// Hide marks a toast invisible and schedules its removal after the exit
// delay. Hiding an already-hidden or unknown id is a no-op.
func (c *Center) Hide(id string) {
	c.mu.Lock()
	it := c.find(id)
	if it == nil || !it.toast.Visible {
		c.mu.Unlock()
		return
	}
	it.toast.Visible = false
	if it.dismissTimer != nil {
		it.dismissTimer.Stop()
	}
	c.mu.Unlock()

	time.AfterFunc(c.cfg.RemoveDelay, func() {
		c.remove(id)
	})
}

// Clear hides every toast immediately and empties the queue after the exit
// delay. Toasts shown after Clear are unaffected.
func (c *Center) Clear() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.items))
	for _, it := range c.items {
		it.toast.Visible = false
		if it.dismissTimer != nil {
			it.dismissTimer.Stop()
		}
		ids = append(ids, it.toast.ID)
	}
	c.mu.Unlock()

	time.AfterFunc(c.cfg.RemoveDelay, func() {
		for _, id := range ids {
			c.remove(id)
		}
	})
}

// Success shows a success toast.
func (c *Center) Success(title, message string) string {
	return c.Show(Options{Type: TypeSuccess, Title: title, Message: message})
}

// Error shows an error toast. Errors are persistent: they stay until hidden
// or cleared. Callers that want auto-dismissing errors use Show directly.
func (c *Center) Error(title, message string) string {
	return c.Show(Options{Type: TypeError, Title: title, Message: message, Persistent: true})
}

// Warning shows a warning toast.
func (c *Center) Warning(title, message string) string {
	return c.Show(Options{Type: TypeWarning, Title: title, Message: message})
}

// Info shows an info toast.
func (c *Center) Info(title, message string) string {
	return c.Show(Options{Type: TypeInfo, Title: title, Message: message})
}

// Visible returns the currently visible toasts, newest first.
func (c *Center) Visible() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Toast, 0, len(c.items))
	for _, it := range c.items {
		if it.toast.Visible {
			out = append(out, it.toast)
		}
	}
	return out
}

// All returns every toast still in the queue, including ones hidden and
// awaiting removal, newest first.
func (c *Center) All() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Toast, len(c.items))
	for i, it := range c.items {
		out[i] = it.toast
	}
	return out
}

// Count returns the number of visible toasts.
func (c *Center) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, it := range c.items {
		if it.toast.Visible {
			n++
		}
	}
	return n
}

// HasAny reports whether any toast is visible.
func (c *Center) HasAny() bool {
	return c.Count() > 0
}

// ByPosition groups the visible toasts by screen position, newest first
// within each group.
func (c *Center) ByPosition() map[Position][]Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[Position][]Toast)
	for _, it := range c.items {
		if it.toast.Visible {
			out[it.toast.Position] = append(out[it.toast.Position], it.toast)
		}
	}
	return out
}

// find returns the item with the given id. Caller holds c.mu.
func (c *Center) find(id string) *item {
	for _, it := range c.items {
		if it.toast.ID == id {
			return it
		}
	}
	return nil
}

// remove splices a toast out of the queue, re-locating it by id so interim
// mutations of the list are tolerated.
func (c *Center) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, it := range c.items {
		if it.toast.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}
