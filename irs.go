package gicv5

import (
	"gicv5/gpa"
	"gicv5/guestlog"
	"gicv5/ist"
	"gicv5/regs"
	"gicv5/spi"
	"gicv5/stream"
)

// HandlingMode is an alias for stream.HandlingMode so callers in this
// package can write gicv5.HandlingEdge etc. without importing stream
// directly.
type HandlingMode = stream.HandlingMode

const (
	HandlingEdge  = stream.HandlingEdge
	HandlingLevel = stream.HandlingLevel
)

// istState is one domain's IST configuration plus its walker-facing Config
// snapshot (kept in step with ist.Config on every SetISTCFGR/SetISTBASER).
// IRS_IST_CFGR (twoLevel, l2size) is only writable while valid is false;
// the base address and valid bit are owned by IRS_IST_BASER.
type istState struct {
	base     uint64
	twoLevel bool
	l2size   uint32
	valid    bool
}

func (s istState) toWalkerConfig() ist.Config {
	return ist.Config{Base: s.base, TwoLevel: s.twoLevel, L2Size: s.l2size, Valid: s.valid}
}

// IRS is the Interrupt Routing Service: the global MMIO device owning the
// SPI state table, the IST walker/LPI cache, and the config-frame register
// state, generalized from devices/pic.go's single fixed PICController into
// a per-domain array of spi.Table plus a shared ist.Walker.
type IRS struct {
	id uint32 // irsid, surfaced via IRS_IDR0

	mem gpa.AddressSpace

	spiTables [numDomainsIRS]*spi.Table
	istCfg    [numDomainsIRS]istState
	walker    *ist.Walker

	spiSel uint32
	peSel  uint32

	cr0 uint32
	cr1 uint32

	peOnline []bool

	realmImplemented bool

	// cpus is set by System at realize time so recomputeTargets and
	// recomputeLPITarget can notify every CPU interface targeted by a
	// changed SPI/LPI, without
	// IRS importing cpuif (cpuif already imports wake but not the other
	// way around, and IRS sits above both).
	cpus []cpuInterfaceHandle
}

const numDomainsIRS = 4

// cpuInterfaceHandle is the narrow surface IRS needs against a
// cpuif.CPUInterface: recompute its HPPI for one domain. Declared locally
// (rather than importing cpuif's concrete type into a field of that type)
// would be redundant since gicv5 already imports cpuif in system.go; it is
// kept as an interface here purely to keep IRS's own file self-contained
// and easy to unit test with a stub.
type cpuInterfaceHandle interface {
	RecomputeHPPIForDomain(domain int)
	IAFFID() uint32
}

// IRSConfig describes one board's IRS at realize time.
type IRSConfig struct {
	IRSID            uint32
	SPIBase          uint32
	NumSPIs          uint32
	RealmImplemented bool
	NumPEs           int
}

// NewIRS constructs an IRS over mem, with one spi.Table per domain covering
// [cfg.SPIBase, cfg.SPIBase+cfg.NumSPIs).
func NewIRS(mem gpa.AddressSpace, cfg IRSConfig) *IRS {
	irs := &IRS{
		id:               cfg.IRSID,
		mem:              mem,
		walker:           ist.NewWalker(mem),
		realmImplemented: cfg.RealmImplemented,
		peOnline:         make([]bool, cfg.NumPEs),
	}
	for d := 0; d < numDomainsIRS; d++ {
		irs.spiTables[d] = spi.NewTable(cfg.SPIBase, cfg.NumSPIs)
	}
	for i := range irs.peOnline {
		irs.peOnline[i] = true
	}
	return irs
}

// AddressSpace re-exports gpa.AddressSpace so callers constructing an IRS
// don't need to import gpa directly in the common case.
type AddressSpace = gpa.AddressSpace

// Reset clears all per-domain SPI state and IST configuration, and drops
// the LPI pending cache without writing it back to guest memory.
func (irs *IRS) Reset() {
	for d := 0; d < numDomainsIRS; d++ {
		base, count := irs.spiTables[d].Range()
		irs.spiTables[d] = spi.NewTable(base, count)
		irs.istCfg[d] = istState{}
	}
	irs.walker = ist.NewWalker(irs.mem)
	irs.spiSel = 0
	irs.peSel = 0
	irs.cr0 = 0
	irs.cr1 = 0
}

func (irs *IRS) table(domain int) *spi.Table {
	if domain < 0 || domain >= numDomainsIRS {
		return nil
	}
	return irs.spiTables[domain]
}

func (irs *IRS) recomputeTargets(domain int, rec *spi.Record) {
	for _, c := range irs.cpus {
		if c.IAFFID() == rec.Target {
			c.RecomputeHPPIForDomain(domain)
		}
	}
}

func (irs *IRS) recomputeLPITarget(domain int, word uint32) {
	target := lpiIAFFID(word)
	for _, c := range irs.cpus {
		if c.IAFFID() == target {
			c.RecomputeHPPIForDomain(domain)
		}
	}
}

// withLPI resolves id's L2 ISTE under domain's current IST config, applies
// mutate to its word, and commits the result through the walker's cache
// discipline. ok is false if the domain's IST is invalid or id cannot be
// resolved.
func (irs *IRS) withLPI(domain int, id uint32, mutate func(word uint32) uint32) (word uint32, ok bool) {
	if domain < 0 || domain >= numDomainsIRS {
		return 0, false
	}
	cfg := irs.istCfg[domain].toWalkerConfig()
	h, ok := irs.walker.GetL2ISTE(domain, id, cfg)
	if !ok {
		return 0, false
	}
	word = mutate(h.Word())
	h.SetWord(word)
	if !irs.walker.PutL2ISTE(domain, h) {
		return 0, false
	}
	return word, true
}

// readLPI resolves id's current L2 ISTE word without mutating it.
func (irs *IRS) readLPI(domain int, id uint32) (word uint32, ok bool) {
	if domain < 0 || domain >= numDomainsIRS {
		return 0, false
	}
	cfg := irs.istCfg[domain].toWalkerConfig()
	h, ok := irs.walker.GetL2ISTE(domain, id, cfg)
	if !ok {
		return 0, false
	}
	return h.Word(), true
}

// --- regs.Backend ---

func (irs *IRS) IRSID() uint32          { return irs.id }
func (irs *IRS) RealmImplemented() bool { return irs.realmImplemented }

func (irs *IRS) CR0() uint32     { return irs.cr0 }
func (irs *IRS) SetCR0(v uint32) { irs.cr0 = v }
func (irs *IRS) CR1() uint32     { return irs.cr1 }
func (irs *IRS) SetCR1(v uint32) { irs.cr1 = v }

func (irs *IRS) ISTConfig(domain int) (bool, uint32, bool) {
	if domain < 0 || domain >= numDomainsIRS {
		return false, 0, false
	}
	s := irs.istCfg[domain]
	return s.twoLevel, s.l2size, s.valid
}

func (irs *IRS) ISTBase(domain int) uint64 {
	if domain < 0 || domain >= numDomainsIRS {
		return 0
	}
	return irs.istCfg[domain].base
}

// SetISTCFGR applies an IRS_IST_CFGR write; it is WI while the domain's
// IRS_IST_BASER.VALID is set, since the architecture latches the IST shape
// for the lifetime of a valid configuration.
func (irs *IRS) SetISTCFGR(domain int, twoLevel bool, l2size uint32) bool {
	if domain < 0 || domain >= numDomainsIRS {
		return false
	}
	s := &irs.istCfg[domain]
	if s.valid {
		return false
	}
	s.twoLevel = twoLevel
	s.l2size = l2size
	return true
}

// SetISTBASER applies an IRS_IST_BASER write. A 0->1 VALID transition
// freezes the currently programmed CFGR shape, sanitizing a two-level L2
// page size below regs.MinL2Size up to that floor. A 1->0 transition
// flushes every cached LPI pending entry back to guest memory before
// invalidating, so a subsequent re-enable starts from a consistent table.
func (irs *IRS) SetISTBASER(domain int, base uint64, valid bool) bool {
	if domain < 0 || domain >= numDomainsIRS {
		return false
	}
	s := &irs.istCfg[domain]
	switch {
	case valid && !s.valid:
		if s.twoLevel && s.l2size < regs.MinL2Size {
			s.l2size = regs.MinL2Size
		}
		s.base = base
		s.valid = true
	case !valid && s.valid:
		if err := irs.walker.FlushCache(domain); err != nil {
			guestlog.Errorf("irs: flushing IST cache for domain %d: %v", domain, err)
		}
		s.base = base
		s.valid = false
	default:
		s.base = base
		s.valid = valid
	}
	return true
}

func (irs *IRS) SPISelect(id uint32) { irs.spiSel = id }
func (irs *IRS) SPISelected() uint32 { return irs.spiSel }

func (irs *IRS) SPIReachable(id uint32) bool {
	t := irs.table(int(DomainS))
	return t != nil && t.Reachable(id)
}

func (irs *IRS) SPIConfig(id uint32) (bool, bool, uint8, bool) {
	t := irs.table(int(DomainS))
	r := t.Get(id)
	if r == nil {
		return false, false, 0, false
	}
	return r.Enabled, r.Trigger == spi.TriggerEdge, r.Priority, true
}

func (irs *IRS) SetSPIConfig(id uint32, enabled, edge bool, prio uint8) bool {
	ok := true
	for d := 0; d < numDomainsIRS; d++ {
		t := irs.table(d)
		r := t.Get(id)
		if r == nil {
			ok = false
			continue
		}
		r.Enabled = enabled
		r.Priority = prio
		tm := spi.TriggerLevel
		if edge {
			tm = spi.TriggerEdge
		}
		t.SetTriggerMode(id, tm)
		irs.recomputeTargets(d, r)
	}
	if !ok {
		guestlog.Errorf("irs: SetSPIConfig on unreachable SPI %d", id)
	}
	return ok
}

func (irs *IRS) SPIDomain(id uint32) (int, bool) {
	r := irs.table(int(DomainS)).Get(id)
	if r == nil {
		return 0, false
	}
	return r.Domain, true
}

func (irs *IRS) SetSPIDomain(id uint32, domain int) bool {
	r := irs.table(int(DomainS)).Get(id)
	if r == nil {
		return false
	}
	r.Domain = domain
	return true
}

// Resample re-applies the §4.4 wire sampler for id against its currently
// latched level and trigger mode, without a level change. Driven by
// IRS_SPI_RESAMPLER.
func (irs *IRS) Resample(id uint32) bool {
	ok := false
	for d := 0; d < numDomainsIRS; d++ {
		t := irs.table(d)
		if !t.Resample(id) {
			continue
		}
		ok = true
		if r := t.Get(id); r != nil {
			irs.recomputeTargets(d, r)
		}
	}
	return ok
}

func (irs *IRS) PESelect(id uint32) { irs.peSel = id }
func (irs *IRS) PESelected() uint32 { return irs.peSel }

func (irs *IRS) PEStatus(id uint32) (bool, bool) {
	if int(id) >= len(irs.peOnline) {
		return false, false
	}
	return irs.peOnline[id], true
}

// MapL2ISTE sets the VALID bit of the L1 ISTE covering LPI id, by reading
// and rewriting the 64-bit L1 entry directly against guest memory — the
// same capability the IST walker itself uses to resolve a two-level
// lookup, exercised here as a plain read-modify-write instead of a lookup.
func (irs *IRS) MapL2ISTE(domain int, id uint32) bool {
	if domain < 0 || domain >= numDomainsIRS {
		return false
	}
	s := irs.istCfg[domain]
	if !s.valid || !s.twoLevel || s.l2size == 0 {
		return false
	}
	l1Index := uint64(id) / uint64(s.l2size)
	l1Addr := s.base + l1Index*8
	attrs := gpa.MemTxAttrs{Space: domain}
	entry, ok := irs.mem.Read64(attrs, l1Addr)
	if !ok {
		return false
	}
	entry |= 1
	return irs.mem.Write64(attrs, l1Addr, entry)
}

// --- stream.Commands ---

func (irs *IRS) SetPriority(domain int, id uint32, kind stream.Kind, prio uint8) bool {
	switch InterruptKind(kind) {
	case KindSPI:
		r := irs.table(domain).Get(id)
		if r == nil {
			guestlog.Errorf("irs: set_priority on unreachable SPI %d", id)
			return false
		}
		r.Priority = prio
		irs.recomputeTargets(domain, r)
		return true
	case KindLPI:
		word, ok := irs.withLPI(domain, id, func(w uint32) uint32 { return setLPIPriority(w, prio) })
		if !ok {
			guestlog.Errorf("irs: set_priority on unreachable/invalid LPI %d", id)
			return false
		}
		irs.recomputeLPITarget(domain, word)
		return true
	default:
		guestlog.Errorf("irs: set_priority: kind %v is not routed through the IRS", InterruptKind(kind))
		return false
	}
}

// SetEnabled honors the requested value, fixing the distilled source's
// documented bug of unconditionally setting ENABLE regardless of the
// argument (see Design note 9).
func (irs *IRS) SetEnabled(domain int, id uint32, kind stream.Kind, enabled bool) bool {
	switch InterruptKind(kind) {
	case KindSPI:
		r := irs.table(domain).Get(id)
		if r == nil {
			guestlog.Errorf("irs: set_enabled on unreachable SPI %d", id)
			return false
		}
		r.Enabled = enabled
		irs.recomputeTargets(domain, r)
		return true
	case KindLPI:
		word, ok := irs.withLPI(domain, id, func(w uint32) uint32 { return setLPIEnabled(w, enabled) })
		if !ok {
			guestlog.Errorf("irs: set_enabled on unreachable/invalid LPI %d", id)
			return false
		}
		irs.recomputeLPITarget(domain, word)
		return true
	default:
		guestlog.Errorf("irs: set_enabled: kind %v is not routed through the IRS", InterruptKind(kind))
		return false
	}
}

// SetPending is the stream protocol's set_pending command: it posts or
// clears PENDING directly, with no trigger-mode/handling-mode interaction.
// This is distinct from the wire-level sampler (SetSPILevel), which
// implements §4.4's spi_sample semantics for a level change on the line
// itself — the two must not be folded into one method (Design note 9).
func (irs *IRS) SetPending(domain int, id uint32, kind stream.Kind, pending bool) bool {
	switch InterruptKind(kind) {
	case KindSPI:
		r := irs.table(domain).Get(id)
		if r == nil {
			guestlog.Errorf("irs: set_pending on unreachable SPI %d", id)
			return false
		}
		r.Pending = pending
		irs.recomputeTargets(domain, r)
		return true
	case KindLPI:
		word, ok := irs.withLPI(domain, id, func(w uint32) uint32 { return setLPIPending(w, pending) })
		if !ok {
			guestlog.Errorf("irs: set_pending on unreachable/invalid LPI %d", id)
			return false
		}
		irs.recomputeLPITarget(domain, word)
		return true
	default:
		guestlog.Errorf("irs: set_pending: kind %v is not routed through the IRS", InterruptKind(kind))
		return false
	}
}

// SetSPILevel is the wire event set_spi(id, level) from §4.4: it resamples
// PENDING/HM against the SPI's trigger mode exactly when the level
// actually changes. System.SetSPI drives this, never SetPending.
func (irs *IRS) SetSPILevel(domain int, id uint32, level bool) bool {
	t := irs.table(domain)
	if t == nil || !t.SetLevel(id, level) {
		guestlog.Errorf("irs: set_spi on unreachable SPI %d", id)
		return false
	}
	irs.recomputeTargets(domain, t.Get(id))
	return true
}

func (irs *IRS) SetHandling(domain int, id uint32, kind stream.Kind, mode stream.HandlingMode) bool {
	switch InterruptKind(kind) {
	case KindSPI:
		r := irs.table(domain).Get(id)
		if r == nil {
			guestlog.Errorf("irs: set_handling on unreachable SPI %d", id)
			return false
		}
		r.Handling = spi.HandlingMode(mode)
		irs.recomputeTargets(domain, r)
		return true
	case KindLPI:
		word, ok := irs.withLPI(domain, id, func(w uint32) uint32 { return setLPIHandling(w, mode) })
		if !ok {
			guestlog.Errorf("irs: set_handling on unreachable/invalid LPI %d", id)
			return false
		}
		irs.recomputeLPITarget(domain, word)
		return true
	default:
		guestlog.Errorf("irs: set_handling: kind %v is not routed through the IRS", InterruptKind(kind))
		return false
	}
}

func (irs *IRS) SetTarget(domain int, id uint32, kind stream.Kind, iaffid uint32) bool {
	switch InterruptKind(kind) {
	case KindSPI:
		r := irs.table(domain).Get(id)
		if r == nil {
			guestlog.Errorf("irs: set_target on unreachable SPI %d", id)
			return false
		}
		old := r.Target
		r.Target = iaffid
		irs.recomputeTargets(domain, r)
		if old != iaffid {
			for _, c := range irs.cpus {
				if c.IAFFID() == old {
					c.RecomputeHPPIForDomain(domain)
				}
			}
		}
		return true
	case KindLPI:
		var old uint32
		word, ok := irs.withLPI(domain, id, func(w uint32) uint32 {
			old = lpiIAFFID(w)
			return setLPIIAFFID(w, iaffid)
		})
		if !ok {
			guestlog.Errorf("irs: set_target on unreachable/invalid LPI %d", id)
			return false
		}
		irs.recomputeLPITarget(domain, word)
		if old != lpiIAFFID(word) {
			irs.recomputeLPITarget(domain, setLPIIAFFID(word, old))
		}
		return true
	default:
		guestlog.Errorf("irs: set_target: kind %v is not routed through the IRS", InterruptKind(kind))
		return false
	}
}

func (irs *IRS) RequestConfig(domain int, id uint32, kind stream.Kind) (bool, uint8, bool) {
	switch InterruptKind(kind) {
	case KindSPI:
		r := irs.table(domain).Get(id)
		if r == nil {
			guestlog.Errorf("irs: request_config on unreachable SPI %d", id)
			return false, 0, false
		}
		return r.Enabled, r.Priority, true
	case KindLPI:
		word, ok := irs.readLPI(domain, id)
		if !ok {
			guestlog.Errorf("irs: request_config on unreachable/invalid LPI %d", id)
			return false, 0, false
		}
		return lpiEnabled(word), lpiPriority(word), true
	default:
		guestlog.Errorf("irs: request_config: kind %v is not routed through the IRS", InterruptKind(kind))
		return false, 0, false
	}
}

func (irs *IRS) Activate(domain int, id uint32, kind stream.Kind) bool {
	switch InterruptKind(kind) {
	case KindSPI:
		r := irs.table(domain).Get(id)
		if r == nil {
			guestlog.Errorf("irs: activate on unreachable SPI %d", id)
			return false
		}
		r.Active = true
		if r.Handling == spi.HandlingEdge {
			r.Pending = false
		}
		irs.recomputeTargets(domain, r)
		return true
	case KindLPI:
		word, ok := irs.withLPI(domain, id, func(w uint32) uint32 {
			w = setLPIActive(w, true)
			if lpiHandling(w) == HandlingEdge {
				w = setLPIPending(w, false)
			}
			return w
		})
		if !ok {
			guestlog.Errorf("irs: activate on unreachable/invalid LPI %d", id)
			return false
		}
		irs.recomputeLPITarget(domain, word)
		return true
	default:
		guestlog.Errorf("irs: activate: PPI %d is not routed through the IRS", id)
		return false
	}
}

func (irs *IRS) Deactivate(domain int, id uint32, kind stream.Kind) bool {
	switch InterruptKind(kind) {
	case KindSPI:
		r := irs.table(domain).Get(id)
		if r == nil {
			guestlog.Errorf("irs: deactivate on unreachable SPI %d", id)
			return false
		}
		r.Active = false
		irs.recomputeTargets(domain, r)
		return true
	case KindLPI:
		word, ok := irs.withLPI(domain, id, func(w uint32) uint32 { return setLPIActive(w, false) })
		if !ok {
			guestlog.Errorf("irs: deactivate on unreachable/invalid LPI %d", id)
			return false
		}
		irs.recomputeLPITarget(domain, word)
		return true
	default:
		guestlog.Errorf("irs: deactivate: PPI %d is not routed through the IRS", id)
		return false
	}
}

// CandidateFor computes the best pending-and-enabled, non-active SPI or
// LPI targeted at iaffid within domain, for cpuif's IRSCandidateFunc. LPIs
// are scanned via the walker's pending cache (RangePending), whose
// membership invariant — present iff pending — makes this a direct
// enumeration with no separate pending-LPI index to maintain.
func (irs *IRS) CandidateFor(domain int, iaffid uint32) (uint32, uint8, InterruptKind, bool) {
	bestID := uint32(0)
	bestPrio := uint8(PrioIdle)
	bestKind := InterruptKind(0)
	found := false

	if t := irs.table(domain); t != nil {
		base, count := t.Range()
		for i := uint32(0); i < count; i++ {
			id := base + i
			r := t.Get(id)
			if r == nil || !r.Enabled || !r.Pending || r.Active {
				continue
			}
			if r.Target != iaffid {
				continue
			}
			if !found || r.Priority < bestPrio {
				bestID, bestPrio, bestKind, found = id, r.Priority, KindSPI, true
			}
		}
	}

	if domain >= 0 && domain < numDomainsIRS {
		irs.walker.RangePending(domain, func(id uint32, word uint32) {
			if !lpiEnabled(word) || lpiActive(word) {
				return
			}
			if lpiIAFFID(word) != iaffid {
				return
			}
			prio := lpiPriority(word)
			if !found || prio < bestPrio {
				bestID, bestPrio, bestKind, found = id, prio, KindLPI, true
			}
		})
	}

	return bestID, bestPrio, bestKind, found
}
