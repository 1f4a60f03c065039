// Package ist implements the GICv5 Interrupt State Table walker and the
// LPI pending-state cache. It is purely functional over a gpa.AddressSpace:
// it has no notion of SPI/PPI semantics, stream-protocol commands, or
// wake lines, the same separation of concerns the PIC emulator draws
// between its register decode (pic.go) and its port-address constants
// (pic_constants.go).
package ist

import (
	"fmt"

	"gicv5/gpa"
)

// ECClass records the last external-abort class the walker hit, mirroring
// the architectural "software error reporting, not yet implemented"
// annotation: the value is recorded for a caller or test to inspect, but
// nothing in this package consumes it the way a real syndrome register
// would.
type ECClass int

const (
	ECNone ECClass = iota
	ECL1Failure
	ECL2Failure
)

// L2 ISTE field layout (32 bits), per the guest-memory IST layout: PENDING,
// ACTIVE, HM, ENABLE, IRM, HWU (2b), PRIORITY (5b), IAFFID (16b). ist only
// needs PENDING to decide cache membership; the rest of the field layout is
// owned by the caller that interprets the word (the IRS), so only PendingBit
// lives here.
const PendingBit uint32 = 1 << 0

// Config describes one domain's IST as programmed through IRS_IST_BASER
// and IRS_IST_CFGR.
type Config struct {
	Base     uint64 // guest physical address of the L1 table (or flat L2 table)
	TwoLevel bool
	L2Size   uint32 // entries per L2 page when TwoLevel is set
	Valid    bool   // IRS_IST_BASER.VALID; an invalid IST never resolves a lookup
}

// Handle is a capability returned by GetL2ISTE: either a cached, mutable
// copy of one L2 ISTE word, or a guest-memory-backed one that must be
// written back explicitly. Carrying this distinction on the handle itself
// (rather than in walker-global state) is what lets PutL2ISTE stay a pure
// function of the handle.
type Handle struct {
	cached bool
	addr   uint64 // meaningless when cached
	id     uint32
	word   uint32
}

// Word returns the current L2 ISTE bit pattern.
func (h *Handle) Word() uint32 { return h.word }

// SetWord updates the in-memory ISTE bit pattern; callers still need
// PutL2ISTE to commit it.
func (h *Handle) SetWord(w uint32) { h.word = w }

// Walker resolves IST lookups against a gpa.AddressSpace and keeps the LPI
// pending-bit write-back cache.
type Walker struct {
	mem gpa.AddressSpace

	// LastECClass is set by a failed lookup and left for inspection; see
	// ECClass.
	LastECClass ECClass

	cache map[cacheKey]*Handle
}

type cacheKey struct {
	domain int
	id     uint32
}

// NewWalker constructs a Walker over the given address space.
func NewWalker(mem gpa.AddressSpace) *Walker {
	return &Walker{mem: mem, cache: make(map[cacheKey]*Handle)}
}

// GetL2ISTE resolves the L2 ISTE for id under cfg, checking the pending-bit
// cache first. ok is false if the domain's IST is not valid, or on a guest-
// memory failure (bad L1/L2 address); a cache hit always succeeds.
func (w *Walker) GetL2ISTE(domain int, id uint32, cfg Config) (*Handle, bool) {
	if !cfg.Valid {
		return nil, false
	}

	key := cacheKey{domain: domain, id: id}
	if h, found := w.cache[key]; found {
		return h, true
	}

	addr, ok := w.resolveL2Address(id, cfg)
	if !ok {
		w.LastECClass = ECL1Failure
		return nil, false
	}

	attrs := gpa.MemTxAttrs{Space: domain}
	word, ok := w.mem.Read32(attrs, addr)
	if !ok {
		w.LastECClass = ECL2Failure
		return nil, false
	}

	return &Handle{cached: false, addr: addr, id: id, word: word}, true
}

// resolveL2Address walks the one- or two-level table to the guest address
// of the L2 ISTE word covering id.
func (w *Walker) resolveL2Address(id uint32, cfg Config) (uint64, bool) {
	const wordBytes = 4
	if !cfg.TwoLevel {
		return cfg.Base + uint64(id)*wordBytes, true
	}
	if cfg.L2Size == 0 {
		return 0, false
	}
	l1Index := id / cfg.L2Size
	l2Offset := id % cfg.L2Size

	l1Addr := cfg.Base + uint64(l1Index)*8
	l1Entry, ok := w.mem.Read64(gpa.MemTxAttrs{}, l1Addr)
	if !ok {
		return 0, false
	}
	if l1Entry&1 == 0 { // L1 ISTE VALID bit clear
		return 0, false
	}
	l2Base := l1Entry &^ 1
	return l2Base + uint64(l2Offset)*wordBytes, true
}

// PutL2ISTE commits a handle's current word, applying the cache-vs-memory
// discipline of Design note 2: a handle that just became pending is
// inserted into the cache with the writeback deferred; a cached handle that
// just stopped being pending is evicted and written back; any other change
// writes straight through.
func (w *Walker) PutL2ISTE(domain int, h *Handle) bool {
	key := cacheKey{domain: domain, id: h.id}
	_, wasCached := w.cache[key]
	pending := h.word&PendingBit != 0

	switch {
	case wasCached && !pending:
		delete(w.cache, key)
		return w.writeback(domain, h)
	case !wasCached && pending:
		h.cached = true
		w.cache[key] = h
		return true
	default:
		return w.writeback(domain, h)
	}
}

func (w *Walker) writeback(domain int, h *Handle) bool {
	ok := w.mem.Write32(gpa.MemTxAttrs{Space: domain}, h.addr, h.word)
	if !ok {
		w.LastECClass = ECL2Failure
	}
	return ok
}

// FlushCache writes every cached L2 ISTE for domain back to guest memory
// and evicts it from the cache. Used when the guest clears IST_BASER.VALID.
func (w *Walker) FlushCache(domain int) error {
	for key, h := range w.cache {
		if key.domain != domain {
			continue
		}
		if !w.mem.Write32(gpa.MemTxAttrs{Space: domain}, h.addr, h.word) {
			return fmt.Errorf("ist: flush id %d: guest memory write failed", h.id)
		}
		delete(w.cache, key)
	}
	return nil
}

// Cache marks the handle for id as cached going forward (used once a
// lookup has been promoted into the LPI pending cache by the caller).
func (w *Walker) Cache(domain int, id uint32, word uint32) {
	w.cache[cacheKey{domain: domain, id: id}] = &Handle{cached: true, id: id, word: word}
}

// RangePending calls fn once for every LPI currently held in domain's
// pending cache. The cache's membership invariant (present iff pending, see
// PutL2ISTE) makes this exactly the set of candidate LPIs the IRS needs to
// scan for HPPI selection, without a separate pending-LPI index.
func (w *Walker) RangePending(domain int, fn func(id uint32, word uint32)) {
	for key, h := range w.cache {
		if key.domain != domain {
			continue
		}
		fn(key.id, h.word)
	}
}
