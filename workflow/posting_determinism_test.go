package workflow

import (
	"sync"
	"testing"
)

// NOTE: These tests are intentionally DB-free. They validate the posting
// semantics the DB enforces in production:
// - at-least-once delivery is safe via durable idempotency keys
// - the posted-flag conditional update lets exactly one attempt write a journal
// - per-business serialization prevents racey interleavings inside handlers
//
// Full DB+PubSub integration tests should be added in an environment that can
// run MySQL + the Pub/Sub emulator.

type fakeLedger struct {
	muByBiz map[string]*sync.Mutex
	mu      sync.Mutex
	seen    map[string]bool
	posted  map[string]bool
	entries int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		muByBiz: map[string]*sync.Mutex{},
		seen:    map[string]bool{},
		posted:  map[string]bool{},
	}
}

// post mirrors ProcessMessage + PostInvoice: advisory lock, idempotency
// dedupe, then the posted-flag CAS deciding whether a journal is written.
func (l *fakeLedger) post(businessID, handlerName, messageID, documentID string) (alreadyPosted bool) {
	l.mu.Lock()
	bm := l.muByBiz[businessID]
	if bm == nil {
		bm = &sync.Mutex{}
		l.muByBiz[businessID] = bm
	}
	l.mu.Unlock()

	bm.Lock()
	defer bm.Unlock()

	key := businessID + "|" + handlerName + "|" + messageID
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[key] {
		return true
	}
	l.seen[key] = true

	if l.posted[documentID] {
		// Soft success: the flag was flipped by an earlier attempt.
		return true
	}
	l.posted[documentID] = true
	l.entries++
	return false
}

func TestDuplicateDelivery_PostsOnce(t *testing.T) {
	l := newFakeLedger()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.post("biz-1", "IV", "123", "invoice-7")
		}()
	}
	wg.Wait()

	if l.entries != 1 {
		t.Fatalf("expected exactly 1 ledger entry, got %d", l.entries)
	}
}

func TestRetryAfterDistinctMessages_StillPostsOnce(t *testing.T) {
	// The same document arriving under two different outbox message ids
	// (publish retry after an unacknowledged delivery) must not double-post:
	// idempotency misses, but the posted flag holds.
	l := newFakeLedger()

	if already := l.post("biz-1", "IV", "1", "invoice-7"); already {
		t.Fatal("first delivery must post")
	}
	if already := l.post("biz-1", "IV", "2", "invoice-7"); !already {
		t.Fatal("second delivery under a new message id must be a soft success")
	}
	if l.entries != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", l.entries)
	}
}

func TestConcurrentMixedDocuments_Deterministic(t *testing.T) {
	for run := 0; run < 100; run++ {
		l := newFakeLedger()
		var wg sync.WaitGroup

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.post("biz-1", "IV", "1", "invoice-1")
				l.post("biz-1", "BL", "2", "bill-1")
				l.post("biz-2", "IV", "3", "invoice-9")
				l.post("biz-1", "IV", "1", "invoice-1") // duplicate
			}()
		}
		wg.Wait()

		if l.entries != 3 {
			t.Fatalf("run=%d expected 3 ledger entries, got %d", run, l.entries)
		}
	}
}
