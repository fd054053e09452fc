package order

import (
	"math/rand/v2"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
)

// OrderNumberPrefix starts every human-readable order number.
const OrderNumberPrefix = "TRX"

// IDGenerator produces internal ids and human-readable order numbers.
type IDGenerator interface {
	NewID() string
	NewOrderNumber() string
}

const (
	// Crockford-style alphabet without 0/O and 1/I/L.
	suffixAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	suffixLen      = 10

	recentCapacity = 1_000_000
	recentFPR      = 0.0001
	maxRegenerate  = 8
)

// RandomGenerator issues UUID ids and random order numbers. A bloom filter of
// recently issued numbers suppresses in-process repeats; persistence-time
// uniqueness is still enforced by the repository.
type RandomGenerator struct {
	mu     sync.Mutex
	recent *bloom.BloomFilter
	issued uint
}

var _ IDGenerator = (*RandomGenerator)(nil)

// NewRandomGenerator creates a RandomGenerator. It is safe for concurrent use.
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{
		recent: bloom.NewWithEstimates(recentCapacity, recentFPR),
	}
}

// NewID returns a random UUID string.
func (g *RandomGenerator) NewID() string {
	return uuid.New().String()
}

// NewOrderNumber returns "TRX" followed by a random suffix.
func (g *RandomGenerator) NewOrderNumber() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.issued >= recentCapacity {
		g.recent.ClearAll()
		g.issued = 0
	}

	var n string
	for range maxRegenerate {
		n = OrderNumberPrefix + randomSuffix()
		if !g.recent.TestOrAddString(n) {
			break
		}
	}
	g.issued++
	return n
}

func randomSuffix() string {
	b := make([]byte, suffixLen)
	for i := range b {
		b[i] = suffixAlphabet[rand.IntN(len(suffixAlphabet))]
	}
	return string(b)
}
