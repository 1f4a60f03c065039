package regs

import "gicv5/guestlog"

// Backend is the set of operations the config-frame register file needs
// from the owning IRS. Keeping it as a narrow interface (rather than regs
// importing the concrete IRS type) avoids an import cycle the same way
// devices/serial.go keeps InterruptRaiser free of a dependency on the
// hypervisor package that implements it — here it is gicv5 that implements
// Backend, and regs that declares it.
type Backend interface {
	IRSID() uint32
	RealmImplemented() bool

	CR0() uint32
	SetCR0(uint32)
	CR1() uint32
	SetCR1(uint32)

	// ISTConfig reports the CFGR-owned shape of domain's IST (one-level
	// vs two-level, L2 page size) and whether IRS_IST_BASER.VALID is
	// currently set for it.
	ISTConfig(domain int) (twoLevel bool, l2size uint32, valid bool)
	// ISTBase reports the guest physical base address currently latched
	// for domain's IST (meaningful only while valid).
	ISTBase(domain int) uint64
	// SetISTCFGR applies a CFGR write; it refuses (returns false) while
	// VALID is set, per IRS_IST_BASER's freeze semantics.
	SetISTCFGR(domain int, twoLevel bool, l2size uint32) bool
	// SetISTBASER applies an IRS_IST_BASER write: on a 0->1 VALID
	// transition it freezes and sanitizes the current CFGR; on a 1->0
	// transition it flushes the LPI pending cache.
	SetISTBASER(domain int, base uint64, valid bool) bool

	SPISelect(id uint32)
	SPISelected() uint32
	SPIReachable(id uint32) bool
	SPIConfig(id uint32) (enabled, edge bool, prio uint8, ok bool)
	SetSPIConfig(id uint32, enabled, edge bool, prio uint8) bool
	SPIDomain(id uint32) (int, bool)
	SetSPIDomain(id uint32, domain int) bool
	// Resample re-applies the wire sampler for id against its current
	// trigger mode and latched level, without a level change.
	Resample(id uint32) bool

	PESelect(id uint32)
	PESelected() uint32
	PEStatus(id uint32) (online bool, ok bool)

	// MapL2ISTE sets the VALID bit of the L1 ISTE covering LPI id, for
	// IRS_MAP_L2_ISTR.
	MapL2ISTE(domain int, id uint32) bool
}

// File decodes and dispatches MMIO accesses to the IRS config frame.
type File struct {
	backend Backend
	domain  int // the domain the current access is being made on behalf of
}

// NewFile constructs a register file bound to backend.
func NewFile(backend Backend) *File {
	return &File{backend: backend}
}

// SetAccessDomain records which domain the next Read/Write calls are made
// on behalf of (set by the MMIO dispatcher from the transaction's attrs
// before calling into File).
func (f *File) SetAccessDomain(domain int) {
	f.domain = domain
}

// Read32 decodes offset and returns the register's current value. A
// reserved or not-yet-implemented offset is RAZ: it logs a guest error and
// returns zero, per spec.md §7's RAZ/WI policy.
func (f *File) Read32(offset uint64) uint32 {
	switch offset {
	case IRS_IDR0:
		v := f.backend.IRSID() << 16
		if f.backend.RealmImplemented() {
			v |= IDR0_REALM
		}
		return v
	case IRS_IDR1, IRS_IDR3, IRS_IDR4, IRS_IDR5, IRS_IDR6, IRS_IDR7:
		return 0
	case IRS_IDR2:
		return 0
	case IRS_IIDR:
		return IIDRValue
	case IRS_AIDR:
		return AIDRValue
	case IRS_DEVARCH:
		return DevArchGICv5
	case IRS_CR0:
		return f.backend.CR0()
	case IRS_CR1:
		return f.backend.CR1()
	case IRS_SYNC_STATUSR:
		return 1
	case IRS_IST_CFGR:
		twoLevel, l2size, _ := f.backend.ISTConfig(f.domain)
		v := uint32(0)
		if twoLevel {
			v |= ISTCFGR_TWOLVL
		}
		v |= (log2(l2size) << ISTCFGR_L2SZ_SHIFT) & ISTCFGR_L2SZ_MASK
		return v
	case IRS_IST_STATUSR:
		return 1
	case IRS_SPI_SELR:
		return f.backend.SPISelected()
	case IRS_SPI_CFGR:
		enabled, edge, prio, ok := f.backend.SPIConfig(f.backend.SPISelected())
		if !ok {
			guestlog.Errorf("regs: IRS_SPI_CFGR read of unreachable SPI %d", f.backend.SPISelected())
			return 0
		}
		v := uint32(0)
		if enabled {
			v |= SPICFGR_ENABLE
		}
		if edge {
			v |= SPICFGR_EDGE
		}
		v |= (uint32(prio) << SPICFGR_PRIO_SHIFT) & SPICFGR_PRIO_MASK
		return v
	case IRS_SPI_DOMAINR:
		d, ok := f.backend.SPIDomain(f.backend.SPISelected())
		if !ok {
			guestlog.Errorf("regs: IRS_SPI_DOMAINR read of unreachable SPI %d", f.backend.SPISelected())
			return 0
		}
		return uint32(d)
	case IRS_SPI_STATUSR:
		v := uint32(0)
		if f.backend.SPIReachable(f.backend.SPISelected()) {
			v |= SPISTATUSR_V
		}
		return v
	case IRS_PE_SELR:
		return f.backend.PESelected()
	case IRS_PE_STATUSR:
		online, ok := f.backend.PEStatus(f.backend.PESelected())
		if !ok {
			guestlog.Errorf("regs: IRS_PE_STATUSR read of unreachable PE %d", f.backend.PESelected())
			return 0
		}
		if online {
			return 1
		}
		return 0
	default:
		if offset >= IRS_IDREGS_BASE && offset <= IRS_IDREGS_END {
			return idRegs[(offset-IRS_IDREGS_BASE)/4]
		}
		guestlog.Errorf("regs: read of reserved/unimplemented offset %#x (RAZ)", offset)
		return 0
	}
}

// Write32 decodes offset and applies value. A reserved or read-only
// offset is WI: it logs a guest error and does nothing.
func (f *File) Write32(offset uint64, value uint32) {
	switch offset {
	case IRS_CR0:
		f.backend.SetCR0(value)
	case IRS_CR1:
		f.backend.SetCR1(value)
	case IRS_SYNCR:
		// Synchronization barrier; this emulation has no posted writes to
		// drain, so the request completes immediately (IRS_SYNC_STATUSR
		// always reads 1).
	case IRS_IST_CFGR:
		twoLevel := value&ISTCFGR_TWOLVL != 0
		l2size := uint32(1) << ((value & ISTCFGR_L2SZ_MASK) >> ISTCFGR_L2SZ_SHIFT)
		if !f.backend.SetISTCFGR(f.domain, twoLevel, l2size) {
			guestlog.Errorf("regs: IRS_IST_CFGR write while IRS_IST_BASER.VALID is set (WI)")
		}
	case IRS_SPI_SELR:
		f.backend.SPISelect(value)
	case IRS_SPI_CFGR:
		enabled := value&SPICFGR_ENABLE != 0
		edge := value&SPICFGR_EDGE != 0
		prio := uint8((value & SPICFGR_PRIO_MASK) >> SPICFGR_PRIO_SHIFT)
		if !f.backend.SetSPIConfig(f.backend.SPISelected(), enabled, edge, prio) {
			guestlog.Errorf("regs: IRS_SPI_CFGR write to unreachable SPI %d", f.backend.SPISelected())
		}
	case IRS_SPI_DOMAINR:
		if !f.backend.SetSPIDomain(f.backend.SPISelected(), int(value)) {
			guestlog.Errorf("regs: IRS_SPI_DOMAINR write to unreachable SPI %d", f.backend.SPISelected())
		}
	case IRS_SPI_RESAMPLER:
		if !f.backend.Resample(f.backend.SPISelected()) {
			guestlog.Errorf("regs: IRS_SPI_RESAMPLER write for unreachable SPI %d", f.backend.SPISelected())
		}
	case IRS_PE_SELR:
		f.backend.PESelect(value)
	case IRS_MAP_L2_ISTR:
		if !f.backend.MapL2ISTE(f.domain, value) {
			guestlog.Errorf("regs: IRS_MAP_L2_ISTR write for unreachable/invalid LPI %d", value)
		}
	case IRS_IDR0, IRS_IDR1, IRS_IDR2, IRS_IDR3, IRS_IDR4, IRS_IDR5, IRS_IDR6, IRS_IDR7,
		IRS_IIDR, IRS_AIDR, IRS_DEVARCH, IRS_SYNC_STATUSR, IRS_IST_STATUSR, IRS_SPI_STATUSR,
		IRS_PE_STATUSR:
		guestlog.Errorf("regs: write to read-only offset %#x (WI)", offset)
	default:
		if offset >= IRS_IDREGS_BASE && offset <= IRS_IDREGS_END {
			guestlog.Errorf("regs: write to read-only identification offset %#x (WI)", offset)
			return
		}
		guestlog.Errorf("regs: write to reserved/unimplemented offset %#x (WI)", offset)
	}
}

// Read64 decodes a 64-bit config-frame access. Only IRS_IST_BASER is
// implemented at this width; everything else is RAZ.
func (f *File) Read64(offset uint64) uint64 {
	switch offset {
	case IRS_IST_BASER:
		_, _, valid := f.backend.ISTConfig(f.domain)
		v := f.backend.ISTBase(f.domain) &^ ISTBASER_VALID
		if valid {
			v |= uint64(ISTBASER_VALID)
		}
		return v
	default:
		guestlog.Errorf("regs: 64-bit read of reserved/unimplemented offset %#x (RAZ)", offset)
		return 0
	}
}

// Write64 decodes a 64-bit config-frame access. Only IRS_IST_BASER is
// implemented at this width; everything else is WI.
func (f *File) Write64(offset uint64, value uint64) {
	switch offset {
	case IRS_IST_BASER:
		valid := value&ISTBASER_VALID != 0
		base := value &^ ISTBASER_VALID
		f.backend.SetISTBASER(f.domain, base, valid)
	default:
		guestlog.Errorf("regs: 64-bit write to reserved/unimplemented offset %#x (WI)", offset)
	}
}

func log2(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	n := uint32(0)
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}
