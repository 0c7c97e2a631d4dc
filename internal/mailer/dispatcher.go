package mailer

import (
	"context"
	"errors"
	"sync"
	"time"

	"laikostar/internal/logging"
	"laikostar/internal/metrics"
)

var (
	ErrQueueFull = errors.New("mail queue is full")
	ErrStopped   = errors.New("mail dispatcher is stopped")
)

const (
	MaxAttempts = 3
	RetryDelay  = 1 * time.Second
	QueueSize   = 100
	SendTimeout = 10 * time.Second
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// FailureFunc is called once a message is given up on.
type FailureFunc func(msg Message, err error)

type Dispatcher struct {
	sender     Sender
	tasks      chan Message
	wg         sync.WaitGroup
	maxWorkers int
	retryDelay time.Duration
	onFailure  FailureFunc
	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
	mu         sync.Mutex
}

func NewDispatcher(ctx context.Context, sender Sender, maxWorkers int, onFailure FailureFunc) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Dispatcher{
		sender:     sender,
		tasks:      make(chan Message, QueueSize),
		maxWorkers: maxWorkers,
		retryDelay: RetryDelay,
		onFailure:  onFailure,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.maxWorkers; i++ {
		go d.worker()
	}
}

// Stop drains the queue and waits for in-flight deliveries.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	close(d.tasks)
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
}

// Enqueue never blocks. A full queue is reported to the caller.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrStopped
	}

	d.wg.Add(1)
	select {
	case d.tasks <- msg:
		return nil
	default:
		d.wg.Done()
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	for msg := range d.tasks {
		if err := d.deliver(msg); err != nil {
			metrics.MailDeliveries.WithLabelValues("failed").Inc()
			logging.Logg.Error("Mail delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
			if d.onFailure != nil {
				d.onFailure(msg, err)
			}
		} else {
			metrics.MailDeliveries.WithLabelValues("sent").Inc()
		}
		d.wg.Done()
	}
}

func (d *Dispatcher) deliver(msg Message) error {
	var lastErr error
	for i := 0; i < MaxAttempts; i++ {
		if i > 0 {
			select {
			case <-d.ctx.Done():
				return d.ctx.Err()
			case <-time.After((1 << (i - 1)) * d.retryDelay):
			}
		}

		ctx, cancel := context.WithTimeout(d.ctx, SendTimeout)
		lastErr = d.sender.Send(ctx, msg)
		cancel()
		if lastErr == nil {
			return nil
		}
		logging.Logg.Warn("Mail attempt failed", "to", msg.To, "attempt", i+1, "error", lastErr)
	}
	return lastErr
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
