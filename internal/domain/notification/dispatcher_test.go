package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mu       sync.Mutex
	failures int
	calls    int
	stored   map[string]*Notification
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("db unavailable")
	}
	if m.stored == nil {
		m.stored = make(map[string]*Notification)
	}
	m.stored[n.ID] = n
	return nil
}

func (m *mockRepo) snapshot() (calls, stored int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, len(m.stored)
}

func newTestDispatcher(repo Repository, cfg DispatcherConfig) *Dispatcher {
	d := NewDispatcher(repo, nil, cfg)
	d.sleep = func(ctx context.Context, _ <-chan struct{}, _ time.Duration) bool { return ctx.Err() == nil }
	d.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestDispatcher_NotifyInline(t *testing.T) {
	repo := &mockRepo{}
	d := newTestDispatcher(repo, DispatcherConfig{})

	n := &Notification{UserID: "u1", Type: TypeOrder, Title: "Order Created"}
	ok := d.Notify(context.Background(), n)

	require.True(t, ok)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
	calls, stored := repo.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, stored)
}

func TestDispatcher_NotifySurvivesCancelledRequest(t *testing.T) {
	repo := &mockRepo{}
	d := newTestDispatcher(repo, DispatcherConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.True(t, d.Notify(ctx, &Notification{UserID: "u1", Type: TypeOrder}))
}

func TestDispatcher_RetriesUntilDelivered(t *testing.T) {
	repo := &mockRepo{failures: 2}
	d := newTestDispatcher(repo, DispatcherConfig{MaxAttempts: 5})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	ok := d.Notify(context.Background(), &Notification{ID: "n1", UserID: "u1", Type: TypeOrder})
	require.False(t, ok)

	require.Eventually(t, func() bool {
		_, stored := repo.snapshot()
		return stored == 1
	}, time.Second, 5*time.Millisecond)

	calls, _ := repo.snapshot()
	assert.Equal(t, 3, calls)

	cancel()
	<-done
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	repo := &mockRepo{failures: 100}
	d := newTestDispatcher(repo, DispatcherConfig{MaxAttempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Notify(context.Background(), &Notification{ID: "n1", UserID: "u1"})

	require.Eventually(t, func() bool {
		calls, _ := repo.snapshot()
		return calls == 3
	}, time.Second, 5*time.Millisecond)

	// No further attempts once the budget is spent.
	time.Sleep(20 * time.Millisecond)
	calls, stored := repo.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, stored)
}

func TestDispatcher_ShutdownRetriesBackingOff(t *testing.T) {
	repo := &mockRepo{failures: 1}
	d := NewDispatcher(repo, nil, DispatcherConfig{Backoff: time.Hour})

	runDone := make(chan struct{})
	go func() {
		_ = d.Run(context.Background())
		close(runDone)
	}()

	require.False(t, d.Notify(context.Background(), &Notification{ID: "n1", UserID: "u1"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	<-runDone

	calls, stored := repo.snapshot()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, stored, "the hour-long backoff is cut short by shutdown")
}

func TestDispatcher_ShutdownDrainsQueue(t *testing.T) {
	repo := &mockRepo{failures: 2}
	d := newTestDispatcher(repo, DispatcherConfig{})

	// Run was never started, so both retries are still queued.
	require.False(t, d.Notify(context.Background(), &Notification{ID: "n1", UserID: "u1"}))
	require.False(t, d.Notify(context.Background(), &Notification{ID: "n2", UserID: "u1"}))
	require.NoError(t, d.Shutdown(context.Background()))

	calls, stored := repo.snapshot()
	assert.Equal(t, 4, calls)
	assert.Equal(t, 2, stored)
}

func TestDispatcher_ShutdownFinalAttemptOnly(t *testing.T) {
	repo := &mockRepo{failures: 100}
	d := newTestDispatcher(repo, DispatcherConfig{MaxAttempts: 10})

	require.False(t, d.Notify(context.Background(), &Notification{ID: "n1", UserID: "u1"}))
	require.NoError(t, d.Shutdown(context.Background()))

	calls, stored := repo.snapshot()
	assert.Equal(t, 2, calls, "a failed final attempt is not requeued")
	assert.Equal(t, 0, stored)

	// Late failures after shutdown are dropped instead of queued.
	require.False(t, d.Notify(context.Background(), &Notification{ID: "n2", UserID: "u1"}))
	assert.Empty(t, d.queue)
}

func TestFanout(t *testing.T) {
	ok := &mockRepo{}
	bad := &mockRepo{failures: 1}

	err := Fanout{bad, ok}.Create(context.Background(), &Notification{ID: "n1"})
	require.Error(t, err)

	_, stored := ok.snapshot()
	assert.Equal(t, 1, stored, "later repositories are still attempted")
}
