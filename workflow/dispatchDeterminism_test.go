package workflow

import (
	"sync"
	"testing"
)

// These tests are intentionally DB-free. They validate the intended consumer
// semantics:
// - at-least-once delivery is safe via durable idempotency
// - per-store serialization prevents racey interleavings inside handlers
//
// Full DB+PubSub integration tests should be added in an environment that can
// run MySQL + Pub/Sub emulator.

type fakeProcessor struct {
	muByStore map[string]*sync.Mutex
	mu        sync.Mutex
	seen      map[string]bool
	calls     int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		muByStore: map[string]*sync.Mutex{},
		seen:      map[string]bool{},
	}
}

func (p *fakeProcessor) process(storeID, handlerName, messageID string, fn func()) {
	// Serialize per store (models AcquireStorePostingLock).
	p.mu.Lock()
	sm := p.muByStore[storeID]
	if sm == nil {
		sm = &sync.Mutex{}
		p.muByStore[storeID] = sm
	}
	p.mu.Unlock()

	sm.Lock()
	defer sm.Unlock()

	// Deduplicate (models IdempotencyKey).
	key := storeID + "|" + handlerName + "|" + messageID
	p.mu.Lock()
	if p.seen[key] {
		p.mu.Unlock()
		return
	}
	p.seen[key] = true
	p.mu.Unlock()

	fn()

	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
}

func TestDuplicateDelivery_IsProcessedOnce(t *testing.T) {
	p := newFakeProcessor()

	const (
		store     = "store-1"
		handler   = "order.status_changed"
		messageID = "123"
	)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.process(store, handler, messageID, func() {})
		}()
	}
	wg.Wait()

	if p.calls != 1 {
		t.Fatalf("expected exactly 1 processing call, got %d", p.calls)
	}
}

func TestProcessing_DeterministicUnderConcurrency(t *testing.T) {
	for run := 0; run < 100; run++ {
		p := newFakeProcessor()
		var wg sync.WaitGroup

		// same scenario, repeated concurrently
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p.process("store-1", "order.status_changed", "1", func() {})
				p.process("store-1", "shopsync.delist", "2", func() {})
				p.process("store-1", "order.status_changed", "1", func() {}) // duplicate
			}(i)
		}
		wg.Wait()

		if p.calls != 2 {
			t.Fatalf("run=%d expected 2 unique calls, got %d", run, p.calls)
		}
	}
}
