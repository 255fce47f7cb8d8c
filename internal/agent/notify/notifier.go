package notify

import (
	"context"
	"sync"

	logx "github.com/legal-assist-poc/server/pkg/logger"
	"github.com/legal-assist-poc/server/pkg/metrics"
)

// Status is a best-effort progress event for an observing client.
type Status struct {
	Node    string `json:"node"`
	Message string `json:"message"`
}

// Notifier receives status events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, s Status)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, s Status)

func (f NotifierFunc) Notify(ctx context.Context, s Status) { f(ctx, s) }

// ChannelNotifier queues events on a bounded channel and drops them when it is full.
type ChannelNotifier struct {
	mu     sync.RWMutex
	ch     chan Status
	closed bool
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelNotifier{ch: make(chan Status, buffer)}
}

func (n *ChannelNotifier) Notify(_ context.Context, s Status) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- s:
	default:
		metrics.StatusNotificationsDropped.Inc()
		logx.Debug().Str("node", s.Node).Msg("status notification dropped")
	}
}

// C is the receive side for the connection writer.
func (n *ChannelNotifier) C() <-chan Status {
	return n.ch
}

// Close stops accepting events and closes the channel. Safe to call twice.
func (n *ChannelNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}

type ctxKey struct{}

// WithNotifier attaches n to ctx for the nodes of one turn.
func WithNotifier(ctx context.Context, n Notifier) context.Context {
	if n == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, n)
}

// Send emits s to the notifier carried by ctx, if any. Panics raised by the
// notifier are recovered and logged; a notification never fails a turn.
func Send(ctx context.Context, s Status) {
	n, ok := ctx.Value(ctxKey{}).(Notifier)
	if !ok || n == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logx.Warn().Interface("panic", r).Str("node", s.Node).Msg("status notifier panicked")
		}
	}()
	n.Notify(ctx, s)
}
