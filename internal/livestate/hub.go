package livestate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownObserver is returned by SendTo for an id that is not registered.
	ErrUnknownObserver = errors.New("observer not registered")
	// ErrObserverClosed resolves a registration whose observer left before its baseline was delivered.
	ErrObserverClosed = errors.New("observer closed")
)

const (
	dropQueueFull = "queue_full"
	dropSendError = "send_error"
)

// Observer receives pushed messages. Send is only ever called from one
// goroutine per observer and must honour ctx's deadline.
type Observer interface {
	Send(ctx context.Context, msg []byte) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, msg []byte) error

func (f ObserverFunc) Send(ctx context.Context, msg []byte) error {
	return f(ctx, msg)
}

// HubOptions tunes per-observer queues.
type HubOptions struct {
	QueueSize   int
	SendTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Hub fans messages out to registered observers. Each observer has its own
// bounded queue drained by a dedicated goroutine, so Broadcast never waits on
// a slow observer; an observer whose queue is full or whose Send fails is removed.
type Hub struct {
	queueSize   int
	sendTimeout time.Duration
	logger      *slog.Logger
	metrics     *Metrics

	mu        sync.Mutex
	observers map[string]*subscription
}

type subscription struct {
	id    string
	obs   Observer
	queue chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	ready     chan error
	readyOnce sync.Once
}

func (s *subscription) resolve(err error) {
	s.readyOnce.Do(func() {
		s.ready <- err
		close(s.ready)
	})
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
	})
	s.resolve(ErrObserverClosed)
}

func NewHub(opts HubOptions) *Hub {
	if opts.QueueSize < 1 {
		opts.QueueSize = 16
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		queueSize:   opts.QueueSize,
		sendTimeout: opts.SendTimeout,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		observers:   make(map[string]*subscription),
	}
}

// Register adds obs and queues baseline as its first message, ahead of any
// later broadcast. The returned channel yields nil once baseline was sent, or
// the error that prevented it.
func (h *Hub) Register(obs Observer, baseline []byte) (string, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:      uuid.NewString(),
		obs:     obs,
		queue:   make(chan []byte, h.queueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		ready:   make(chan error, 1),
	}
	sub.queue <- baseline

	h.mu.Lock()
	h.observers[sub.id] = sub
	n := len(h.observers)
	h.mu.Unlock()

	h.metrics.setObservers(n)
	go h.pump(sub)

	h.logger.Debug("observer registered", "observer", sub.id, "observers", n)
	return sub.id, sub.ready
}

// Unregister removes the observer and waits, at most SendTimeout, for its
// delivery goroutine to finish, so no Send runs after it returns. Unknown ids
// are ignored. It must not be called from inside the observer's own Send.
func (h *Hub) Unregister(id string) {
	if sub := h.remove(id, ""); sub != nil {
		h.wait(time.After(h.sendTimeout), sub)
	}
}

// Done returns a channel that is closed once id is no longer registered,
// whether it left or was dropped.
func (h *Hub) Done(id string) <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.observers[id]; ok {
		return sub.done
	}
	return closedChan
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func (h *Hub) wait(deadline <-chan time.Time, sub *subscription) {
	select {
	case <-sub.stopped:
	case <-deadline:
		h.logger.Warn("observer still sending after removal", "observer", sub.id)
	}
}

// Broadcast queues msg for every observer and returns how many accepted it.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.Lock()
	var full []string
	delivered := 0
	for id, sub := range h.observers {
		select {
		case sub.queue <- msg:
			delivered++
		default:
			full = append(full, id)
		}
	}
	h.mu.Unlock()

	h.metrics.broadcast()
	for _, id := range full {
		h.remove(id, dropQueueFull)
	}
	return delivered
}

// SendTo queues msg for a single observer.
func (h *Hub) SendTo(id string, msg []byte) error {
	h.mu.Lock()
	sub, ok := h.observers[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownObserver
	}
	select {
	case sub.queue <- msg:
		h.mu.Unlock()
		return nil
	default:
		h.mu.Unlock()
		h.remove(id, dropQueueFull)
		return ErrObserverClosed
	}
}

// Len reports how many observers are registered.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Has reports whether id is registered.
func (h *Hub) Has(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.observers[id]
	return ok
}

// Close removes every observer and waits for their delivery goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.observers))
	for id := range h.observers {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	var removed []*subscription
	for _, id := range ids {
		if sub := h.remove(id, ""); sub != nil {
			removed = append(removed, sub)
		}
	}
	deadline := time.After(h.sendTimeout)
	for _, sub := range removed {
		h.wait(deadline, sub)
	}
}

// remove deletes id and stops its delivery. It returns the removed
// subscription, or nil if id was not registered.
func (h *Hub) remove(id, reason string) *subscription {
	h.mu.Lock()
	sub, ok := h.observers[id]
	if ok {
		delete(h.observers, id)
	}
	n := len(h.observers)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	sub.close()
	h.metrics.setObservers(n)
	if reason != "" {
		h.metrics.drop(reason)
		h.logger.Warn("observer dropped", "observer", id, "reason", reason)
	}
	return sub
}

func (h *Hub) pump(sub *subscription) {
	defer close(sub.stopped)
	for {
		select {
		case <-sub.done:
			return
		case msg := <-sub.queue:
			select {
			case <-sub.done:
				return
			default:
			}

			ctx, cancel := context.WithTimeout(sub.ctx, h.sendTimeout)
			err := sub.obs.Send(ctx, msg)
			cancel()

			sub.resolve(err)
			if err != nil {
				h.logger.Debug("observer send failed", "observer", sub.id, "error", err)
				h.remove(sub.id, dropSendError)
				return
			}
		}
	}
}
