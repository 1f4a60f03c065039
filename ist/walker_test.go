package ist

import (
	"testing"

	"gicv5/gpa"
)

func newTestMemory(t *testing.T) *gpa.GuestMemory {
	t.Helper()
	gm, err := gpa.NewGuestMemory(64 * 1024)
	if err != nil {
		t.Fatalf("NewGuestMemory: %v", err)
	}
	t.Cleanup(func() { gm.Close() })
	return gm
}

func TestWalkerOneLevel(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)
	cfg := Config{Base: 0x1000, Valid: true}

	mem.Write32(gpa.MemTxAttrs{}, 0x1000+7*4, 0xaa) // PENDING clear

	h, ok := w.GetL2ISTE(0, 7, cfg)
	if !ok {
		t.Fatalf("GetL2ISTE failed")
	}
	if h.Word() != 0xaa {
		t.Errorf("got word %#x, want 0xaa", h.Word())
	}

	h.SetWord(0xac) // still PENDING clear: plain writeback, not a cache insert
	if !w.PutL2ISTE(0, h) {
		t.Fatalf("PutL2ISTE failed")
	}
	v, _ := mem.Read32(gpa.MemTxAttrs{}, 0x1000+7*4)
	if v != 0xac {
		t.Errorf("guest memory not updated: got %#x, want 0xac", v)
	}
	if _, found := w.cache[cacheKey{domain: 0, id: 7}]; found {
		t.Errorf("an ISTE that never became pending should not enter the cache")
	}
}

func TestWalkerGetL2ISTERequiresValidConfig(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)
	if _, ok := w.GetL2ISTE(0, 7, Config{Base: 0x1000}); ok {
		t.Fatalf("an invalid (unconfigured) IST must never resolve a lookup")
	}
}

func TestWalkerTwoLevel(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)
	cfg := Config{Base: 0x2000, TwoLevel: true, L2Size: 16, Valid: true}

	const l2Page = uint64(0x5000)
	mem.Write64(gpa.MemTxAttrs{}, 0x2000, l2Page|1) // L1[0] -> l2Page, VALID set
	mem.Write32(gpa.MemTxAttrs{}, l2Page+3*4, 0x42)

	h, ok := w.GetL2ISTE(0, 3, cfg)
	if !ok {
		t.Fatalf("GetL2ISTE failed")
	}
	if h.Word() != 0x42 {
		t.Errorf("got %#x, want 0x42", h.Word())
	}
}

func TestWalkerUnmappedL1Fails(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)
	cfg := Config{Base: 0x2000, TwoLevel: true, L2Size: 16, Valid: true}

	if _, ok := w.GetL2ISTE(0, 3, cfg); ok {
		t.Fatalf("expected lookup against unmapped L1 entry to fail")
	}
	if w.LastECClass != ECL1Failure {
		t.Errorf("got ECClass %v, want ECL1Failure", w.LastECClass)
	}
}

func TestWalkerL1EntryInvalidBitFails(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)
	cfg := Config{Base: 0x2000, TwoLevel: true, L2Size: 16, Valid: true}

	mem.Write64(gpa.MemTxAttrs{}, 0x2000, 0x5000) // L1 entry present but VALID bit clear

	if _, ok := w.GetL2ISTE(0, 3, cfg); ok {
		t.Fatalf("expected lookup against an invalid L1 entry to fail")
	}
	if w.LastECClass != ECL1Failure {
		t.Errorf("got ECClass %v, want ECL1Failure", w.LastECClass)
	}
}

func TestWalkerCacheHitSkipsMemory(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)
	w.Cache(0, 9, 0x11)

	h, ok := w.GetL2ISTE(0, 9, Config{Valid: true})
	if !ok {
		t.Fatalf("cached lookup should not touch guest memory")
	}
	if h.Word() != 0x11 {
		t.Errorf("got %#x, want 0x11", h.Word())
	}
}

func TestPutL2ISTEInsertsOnNewlyPending(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)
	cfg := Config{Base: 0x1000, Valid: true}
	mem.Write32(gpa.MemTxAttrs{}, 0x1000+7*4, 0) // PENDING clear

	h, ok := w.GetL2ISTE(0, 7, cfg)
	if !ok {
		t.Fatalf("GetL2ISTE failed")
	}
	h.SetWord(h.Word() | PendingBit)
	if !w.PutL2ISTE(0, h) {
		t.Fatalf("PutL2ISTE failed")
	}

	if _, found := w.cache[cacheKey{domain: 0, id: 7}]; !found {
		t.Fatalf("a newly-pending ISTE should be inserted into the cache")
	}
	v, _ := mem.Read32(gpa.MemTxAttrs{}, 0x1000+7*4)
	if v != 0 {
		t.Errorf("the writeback should be deferred while the entry is cached, got %#x", v)
	}
}

func TestPutL2ISTEEvictsAndWritesBackOnUnpending(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)
	w.Cache(0, 9, PendingBit)

	h, ok := w.GetL2ISTE(0, 9, Config{Valid: true})
	if !ok {
		t.Fatalf("GetL2ISTE failed")
	}
	h.addr = 0x1000 + 9*4
	h.SetWord(0) // clears PENDING
	if !w.PutL2ISTE(0, h) {
		t.Fatalf("PutL2ISTE failed")
	}

	if _, found := w.cache[cacheKey{domain: 0, id: 9}]; found {
		t.Errorf("an ISTE that stopped being pending should be evicted")
	}
	v, _ := mem.Read32(gpa.MemTxAttrs{}, h.addr)
	if v != 0 {
		t.Errorf("eviction should write back the final word: got %#x, want 0", v)
	}
}

func TestFlushCacheWritesBackAndEvicts(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)

	mem.Write32(gpa.MemTxAttrs{}, 0x3000+5*4, 0)
	w.Cache(0, 5, PendingBit)
	w.cache[cacheKey{domain: 0, id: 5}].addr = 0x3000 + 5*4
	w.cache[cacheKey{domain: 0, id: 5}].SetWord(0x99 | PendingBit)

	if err := w.FlushCache(0); err != nil {
		t.Fatalf("FlushCache: %v", err)
	}
	v, _ := mem.Read32(gpa.MemTxAttrs{}, 0x3000+5*4)
	if v != 0x99|PendingBit {
		t.Errorf("flush did not write back: got %#x, want %#x", v, 0x99|PendingBit)
	}
	if _, found := w.cache[cacheKey{domain: 0, id: 5}]; found {
		t.Errorf("flush did not evict cached entry")
	}
}

func TestRangePendingEnumeratesOnlyRequestedDomain(t *testing.T) {
	mem := newTestMemory(t)
	w := NewWalker(mem)
	w.Cache(0, 1, PendingBit)
	w.Cache(0, 2, PendingBit|0x20)
	w.Cache(1, 3, PendingBit)

	seen := make(map[uint32]uint32)
	w.RangePending(0, func(id uint32, word uint32) { seen[id] = word })

	if len(seen) != 2 {
		t.Fatalf("expected 2 pending entries for domain 0, got %d", len(seen))
	}
	if seen[2] != PendingBit|0x20 {
		t.Errorf("got word %#x for id 2, want %#x", seen[2], PendingBit|0x20)
	}
	if _, found := seen[3]; found {
		t.Errorf("RangePending leaked an entry from a different domain")
	}
}
