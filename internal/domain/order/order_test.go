package order

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusSuccess, true},
		{StatusProcessing, StatusFailed, true},
		{StatusSuccess, StatusRefunded, true},
		{StatusPending, StatusSuccess, false},
		{StatusPending, StatusFailed, false},
		{StatusPending, StatusRefunded, false},
		{StatusProcessing, StatusPending, false},
		{StatusFailed, StatusProcessing, false},
		{StatusRefunded, StatusSuccess, false},
		{StatusSuccess, StatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusRefunded.Terminal())
	assert.False(t, StatusSuccess.Terminal())
	assert.False(t, Status("BOGUS").Valid())
}

func TestTotal(t *testing.T) {
	items := []Item{
		{Price: 16200, Quantity: 1},
		{Price: 5000, Quantity: 3},
	}
	assert.Equal(t, int64(31200), Total(items))
	assert.Equal(t, int64(0), Total(nil))
}

func TestRandomGenerator(t *testing.T) {
	g := NewRandomGenerator()

	n := g.NewOrderNumber()
	require.True(t, strings.HasPrefix(n, OrderNumberPrefix))
	assert.Len(t, n, len(OrderNumberPrefix)+suffixLen)
	for _, c := range n[len(OrderNumberPrefix):] {
		assert.Contains(t, suffixAlphabet, string(c))
	}

	assert.NotEqual(t, g.NewID(), g.NewID())
}

func TestRandomGenerator_ConcurrentUnique(t *testing.T) {
	g := NewRandomGenerator()

	const workers, perWorker = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for range perWorker {
				local = append(local, g.NewOrderNumber())
			}
			mu.Lock()
			for _, n := range local {
				seen[n] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
