package queueworker

import (
	"sync"
	"time"

	"github.com/coocood/freecache"
)

// NonceGate suppresses duplicate handler invocations when a broker
// redelivers a message id that is in flight or recently finished.
// Implementations must be safe for concurrent use and bounded in size;
// dedup is best effort, never a delivery guarantee.
type NonceGate interface {
	// Admit returns true if the id has not been seen and marks it in
	// flight. A false return means the message must be dropped without a
	// handler call.
	Admit(id string) bool

	// Complete records that the handler finished successfully.
	Complete(id string)

	// Failed records that the handler failed or aborted. The id stays
	// blocked until the store evicts it.
	Failed(id string)
}

const (
	defaultGateBytes = 16 * 1024 * 1024
	defaultGateTTL   = time.Hour
)

const (
	stateInFlight byte = iota + 1
	stateComplete
	stateFailed
)

type memoryGate struct {
	mu    sync.Mutex
	cache *freecache.Cache
	ttl   int // seconds
}

// NewMemoryGate returns a process-local NonceGate backed by a fixed-size
// freecache store. Entries expire after ttl; older entries are evicted
// under memory pressure.
func NewMemoryGate(sizeBytes int, ttl time.Duration) NonceGate {
	if sizeBytes <= 0 {
		sizeBytes = defaultGateBytes
	}
	if ttl <= 0 {
		ttl = defaultGateTTL
	}
	return &memoryGate{
		cache: freecache.NewCache(sizeBytes),
		ttl:   int(ttl.Seconds()),
	}
}

func (g *memoryGate) Admit(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.cache.Get([]byte(id)); err == nil {
		return false
	}
	if err := g.cache.Set([]byte(id), []byte{stateInFlight}, g.ttl); err != nil {
		// Oversized or unstorable key: admit and let the broker dedup.
		return true
	}
	return true
}

func (g *memoryGate) Complete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.cache.Set([]byte(id), []byte{stateComplete}, g.ttl)
}

func (g *memoryGate) Failed(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.cache.Set([]byte(id), []byte{stateFailed}, g.ttl)
}
