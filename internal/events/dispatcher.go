package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/domain"
)

// Type names a pipeline event.
type Type string

const (
	RunStarted     Type = "run.started"
	PhaseCompleted Type = "phase.completed"
	RunCompleted   Type = "run.completed"
	BatchCompleted Type = "batch.completed"
)

// Event is one pipeline occurrence delivered to subscribers.
type Event struct {
	Type     Type
	RunID    string
	TicketID string
	Phase    domain.PhaseName
	Success  bool
	Payload  map[string]any
	At       time.Time
}

// Handler consumes one event. Handlers must not block for long; they share
// one delivery goroutine.
type Handler func(Event)

// Dispatcher fans pipeline events out to subscribers through a buffered
// queue, decoupling run execution from whatever the handlers do.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	queue    chan Event
	done     chan struct{}
	closed   bool
	logger   *zap.Logger
}

// NewDispatcher builds a dispatcher and starts its delivery loop.
func NewDispatcher(buffer int, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		handlers: make(map[Type][]Handler),
		queue:    make(chan Event, buffer),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go d.run()
	return d
}

// Subscribe registers a handler for one event type.
func (d *Dispatcher) Subscribe(t Type, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

// Publish enqueues an event. When the queue is full the event is dropped
// with a warning rather than stalling a run. The send happens under the
// read lock so it can never race a concurrent Close of the queue.
func (d *Dispatcher) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("event queue full, dropping event", zap.String("type", string(event.Type)))
	}
}

// Close stops the delivery loop after draining queued events.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		d.mu.RLock()
		handlers := d.handlers[event.Type]
		d.mu.RUnlock()
		for _, h := range handlers {
			d.deliver(h, event)
		}
	}
}

func (d *Dispatcher) deliver(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("type", string(event.Type)),
				zap.Any("panic", r))
		}
	}()
	h(event)
}
