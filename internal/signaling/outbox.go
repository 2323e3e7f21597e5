package signaling

import (
	"context"
	"log/slog"
	"sync"

	"github.com/HMasataka/huddle/internal/metrics"
	"github.com/gammazero/deque"
	"github.com/sourcegraph/jsonrpc2"
)

// NotifyConn is the part of *jsonrpc2.Conn the outbox writes to.
type NotifyConn interface {
	Notify(ctx context.Context, method string, params any, opts ...jsonrpc2.CallOption) error
}

type notification struct {
	method string
	params any
}

/*
Outboxは1接続分のサーバー発イベントを順序どおりに送信します。
Notifyはルームのロック中に呼ばれるためブロックせず、キューに積むだけです。
送信は1つのgoroutineが行うので、積んだ順序のまま相手に届きます。
*/
type Outbox struct {
	socketID string
	warnSize int

	mu     sync.Mutex
	queue  deque.Deque[notification]
	closed bool

	wake chan struct{}
	done chan struct{}
}

func NewOutbox(socketID string, warnSize int) *Outbox {
	return &Outbox{
		socketID: socketID,
		warnSize: warnSize,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Notify implements room.Notifier.
func (o *Outbox) Notify(method string, params any) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue.PushBack(notification{method: method, params: params})
	backlog := o.queue.Len()
	o.mu.Unlock()

	if o.warnSize > 0 && backlog == o.warnSize {
		slog.Warn("notification backlog growing", slog.String("socket_id", o.socketID), slog.Int("backlog", backlog))
	}

	metrics.NotificationsTotal.WithLabelValues(method).Inc()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of notifications waiting to be written.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Len()
}

// Start drains the queue into conn until ctx is done or the outbox is closed.
func (o *Outbox) Start(ctx context.Context, conn NotifyConn) {
	go o.writePump(ctx, conn)
}

func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	o.queue.Clear()
	close(o.done)
}

func (o *Outbox) writePump(ctx context.Context, conn NotifyConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			return
		case <-o.wake:
		}

		for {
			n, ok := o.pop()
			if !ok {
				break
			}
			if err := conn.Notify(ctx, n.method, n.params); err != nil {
				slog.Warn("failed to send notification",
					slog.String("socket_id", o.socketID),
					slog.String("method", n.method),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

func (o *Outbox) pop() (notification, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.queue.Len() == 0 {
		return notification{}, false
	}
	return o.queue.PopFront(), true
}
