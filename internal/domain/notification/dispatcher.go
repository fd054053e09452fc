package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DispatcherConfig tunes delivery retries.
type DispatcherConfig struct {
	// QueueSize bounds the number of notifications awaiting retry.
	QueueSize int
	// MaxAttempts includes the initial synchronous attempt.
	MaxAttempts int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

type pending struct {
	n       *Notification
	attempt int
}

// Dispatcher creates notifications outside the caller's transaction. The first
// attempt runs inline; failures are queued and retried by Run with
// exponential backoff. Delivery failures never propagate to the caller.
type Dispatcher struct {
	repo  Repository
	lg    *zap.Logger
	cfg   DispatcherConfig
	now   func() time.Time
	sleep func(ctx context.Context, stop <-chan struct{}, d time.Duration) bool

	queue  chan pending
	wg     sync.WaitGroup
	stop   chan struct{}
	exited chan struct{}

	mu      sync.Mutex
	closed  bool
	running bool
}

// NewDispatcher creates a Dispatcher writing to repo.
func NewDispatcher(repo Repository, lg *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if lg == nil {
		lg = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		repo:   repo,
		lg:     lg,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
		queue:  make(chan pending, cfg.QueueSize),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Notify assigns an id and creation time to n when missing and attempts to
// store it. It reports whether the first attempt succeeded; on failure the
// notification is queued for retry.
func (d *Dispatcher) Notify(ctx context.Context, n *Notification) bool {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}

	// Not bound to the request context: a cancelled request must not abort
	// delivery of a notification for an order that already committed.
	if err := d.deliver(context.WithoutCancel(ctx), n); err != nil {
		d.lg.Error("Notification delivery failed, scheduling retry",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Int("attempt", 1),
			zap.Error(err),
		)
		d.enqueue(pending{n: n, attempt: 1})
		return false
	}
	return true
}

func (d *Dispatcher) enqueue(p pending) {
	if d.stopping() {
		d.lg.Error("Notification dispatcher stopped, dropping",
			zap.String("notification_id", p.n.ID),
			zap.String("user_id", p.n.UserID),
		)
		return
	}
	select {
	case d.queue <- p:
	default:
		d.lg.Error("Notification retry queue full, dropping",
			zap.String("notification_id", p.n.ID),
			zap.String("user_id", p.n.UserID),
		)
	}
}

// Run processes queued retries until ctx is cancelled or Shutdown is called.
// Cancelling ctx abandons pending retries; Shutdown gives them a final attempt.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.closed || d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.mu.Unlock()
	defer close(d.exited)

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return nil
		case <-d.stop:
			return nil
		case p := <-d.queue:
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.retry(ctx, p)
			}()
		}
	}
}

// Shutdown stops Run and makes one final delivery attempt for every retry
// that is still waiting, whether queued or backing off. Run's context must
// stay alive until Shutdown returns. Attempts still running when ctx expires
// are left to Run's context and ctx.Err() is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stop)
	}
	running := d.running
	d.mu.Unlock()

	if running {
		select {
		case <-d.exited:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	inflight := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(inflight)
	}()
	select {
	case <-inflight:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		select {
		case p := <-d.queue:
			d.final(ctx, p)
		default:
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) stopping() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) retry(ctx context.Context, p pending) {
	delay := d.cfg.Backoff << (p.attempt - 1)
	if !d.sleep(ctx, d.stop, delay) {
		if ctx.Err() != nil {
			d.lg.Warn("Notification retry abandoned on shutdown",
				zap.String("notification_id", p.n.ID),
				zap.Int("attempt", p.attempt),
			)
			return
		}
		d.final(ctx, p)
		return
	}

	p.attempt++
	if err := d.deliver(ctx, p.n); err != nil {
		if p.attempt >= d.cfg.MaxAttempts {
			d.lg.Error("Notification delivery gave up",
				zap.String("notification_id", p.n.ID),
				zap.String("user_id", p.n.UserID),
				zap.Int("attempt", p.attempt),
				zap.Error(err),
			)
			return
		}
		if d.stopping() {
			d.lg.Error("Notification dropped on shutdown",
				zap.String("notification_id", p.n.ID),
				zap.String("user_id", p.n.UserID),
				zap.Int("attempt", p.attempt),
				zap.Error(err),
			)
			return
		}
		d.lg.Warn("Notification retry failed",
			zap.String("notification_id", p.n.ID),
			zap.Int("attempt", p.attempt),
			zap.Error(err),
		)
		d.enqueue(p)
		return
	}
	d.lg.Info("Notification delivered after retry",
		zap.String("notification_id", p.n.ID),
		zap.Int("attempt", p.attempt),
	)
}

func (d *Dispatcher) final(ctx context.Context, p pending) {
	p.attempt++
	if err := d.deliver(ctx, p.n); err != nil {
		d.lg.Error("Notification dropped on shutdown",
			zap.String("notification_id", p.n.ID),
			zap.String("user_id", p.n.UserID),
			zap.Int("attempt", p.attempt),
			zap.Error(err),
		)
		return
	}
	d.lg.Info("Notification delivered on shutdown",
		zap.String("notification_id", p.n.ID),
		zap.Int("attempt", p.attempt),
	)
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	return d.repo.Create(ctx, n)
}

func sleepCtx(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
