package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/notification"
	"github.com/inquirydesk/inquiry-service/internal/observability"
)

// NotificationWorkerConfig tunes the delivery pool.
type NotificationWorkerConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	RetryBackoff   time.Duration
	DeliverTimeout time.Duration
}

// NotificationWorker delivers queued notifications out of band with
// bounded retries. Enqueue never blocks the caller.
type NotificationWorker struct {
	cfg    NotificationWorkerConfig
	sink   notification.Sink
	guard  notification.Guard
	logger *zap.Logger

	queue chan domain.Notification
	wg    sync.WaitGroup
	once  sync.Once
	sleep func(ctx context.Context, d time.Duration) bool

	// mu guards stopped and cancel; Enqueue sends under the read lock so
	// Stop can close the queue safely.
	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
}

// NewNotificationWorker builds a worker; call Start to run it.
func NewNotificationWorker(cfg NotificationWorkerConfig, sink notification.Sink, guard notification.Guard, logger *zap.Logger) *NotificationWorker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		cfg:    cfg,
		sink:   sink,
		guard:  guard,
		logger: logger,
		queue:  make(chan domain.Notification, cfg.QueueSize),
		sleep:  sleepCtx,
	}
}

// Enqueue schedules delivery. It reports false when the queue is full;
// the notification is then dropped and logged.
func (w *NotificationWorker) Enqueue(n domain.Notification) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		w.discard(n, "worker stopped")
		return false
	}
	select {
	case w.queue <- n:
		return true
	default:
		w.discard(n, "queue full")
		return false
	}
}

// Start launches the worker goroutines. They deliver until Stop closes
// the queue; cancelling ctx discards whatever is still queued.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.once.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		w.mu.Lock()
		w.cancel = cancel
		w.mu.Unlock()

		for i := 0; i < w.cfg.Workers; i++ {
			w.wg.Add(1)
			go w.run(runCtx)
		}
		w.logger.Info("notification worker started",
			zap.Int("workers", w.cfg.Workers),
			zap.String("sink", w.sink.Name()))
	})
}

// Stop refuses new notifications and delivers the queued ones. When ctx
// expires first, in-flight deliveries are cancelled and the remainder is
// discarded; ctx's error is returned in that case.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	cancel := w.cancel
	w.mu.Unlock()

	if cancel == nil {
		w.discardPending()
		return nil
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	<-done
	w.discardPending()
	return err
}

// Wait blocks until every worker goroutine has exited.
func (w *NotificationWorker) Wait() {
	w.wg.Wait()
}

func (w *NotificationWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.discardPending()
			return
		case n, ok := <-w.queue:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				w.discard(n, "shutdown")
				continue
			}
			w.deliver(ctx, n)
		}
	}
}

func (w *NotificationWorker) discardPending() {
	for {
		select {
		case n, ok := <-w.queue:
			if !ok {
				return
			}
			w.discard(n, "shutdown")
		default:
			return
		}
	}
}

func (w *NotificationWorker) discard(n domain.Notification, reason string) {
	observability.NotificationsDispatched.WithLabelValues(string(n.Kind), "dropped").Inc()
	w.logger.Warn("notification dropped",
		zap.String("reason", reason),
		zap.String("ticket_id", n.TicketID),
		zap.String("message_id", n.MessageID),
		zap.String("recipient_id", n.RecipientID))
}

func (w *NotificationWorker) deliver(ctx context.Context, n domain.Notification) {
	key := n.IdempotencyKey()
	kind := string(n.Kind)

	if seen, err := w.guard.Seen(ctx, key); err == nil && seen {
		observability.NotificationsDispatched.WithLabelValues(kind, "duplicate").Inc()
		return
	}

	backoff := w.cfg.RetryBackoff
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		err := w.attempt(ctx, n)
		if err == nil {
			if _, markErr := w.guard.MarkDelivered(ctx, key); markErr != nil {
				w.logger.Warn("delivered but could not record idempotency mark", zap.String("key", key), zap.Error(markErr))
			}
			observability.NotificationsDispatched.WithLabelValues(kind, "delivered").Inc()
			return
		}

		w.logger.Warn("notification delivery failed",
			zap.String("ticket_id", n.TicketID),
			zap.String("message_id", n.MessageID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == w.cfg.MaxAttempts || !w.sleep(ctx, backoff) {
			break
		}
		backoff *= 2
	}
	observability.NotificationsDispatched.WithLabelValues(kind, "failed").Inc()
	w.logger.Error("notification abandoned",
		zap.String("ticket_id", n.TicketID),
		zap.String("message_id", n.MessageID),
		zap.String("recipient_id", n.RecipientID))
}

func (w *NotificationWorker) attempt(ctx context.Context, n domain.Notification) error {
	if w.cfg.DeliverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.DeliverTimeout)
		defer cancel()
	}
	return w.sink.Deliver(ctx, n)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
