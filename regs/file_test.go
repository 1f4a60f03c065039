package regs

import "testing"

// fakeBackend is a small hand-rolled double implementing Backend, grounded
// on ne2000_test.go's MockInterruptRaiser/MockTapDevice pattern of testing
// a register decoder against a minimal fake rather than the real IRS.
type fakeBackend struct {
	irsid            uint32
	realmImplemented bool
	cr0, cr1         uint32

	istValid    map[int]bool
	istTwoLevel map[int]bool
	istL2size   map[int]uint32
	istBase     map[int]uint64

	spiSel       uint32
	spiEnabled   map[uint32]bool
	spiEdge      map[uint32]bool
	spiPrio      map[uint32]uint8
	spiDomain    map[uint32]int
	spiMax       uint32
	resampleLog  []uint32

	peSel    uint32
	peMax    uint32
	mapCalls []uint32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		irsid:       5,
		istValid:    map[int]bool{},
		istTwoLevel: map[int]bool{},
		istL2size:   map[int]uint32{},
		istBase:     map[int]uint64{},
		spiEnabled:  map[uint32]bool{},
		spiEdge:     map[uint32]bool{},
		spiPrio:     map[uint32]uint8{},
		spiDomain:   map[uint32]int{},
		spiMax:      16,
		peMax:       4,
	}
}

func (f *fakeBackend) IRSID() uint32          { return f.irsid }
func (f *fakeBackend) RealmImplemented() bool { return f.realmImplemented }

func (f *fakeBackend) CR0() uint32     { return f.cr0 }
func (f *fakeBackend) SetCR0(v uint32) { f.cr0 = v }
func (f *fakeBackend) CR1() uint32     { return f.cr1 }
func (f *fakeBackend) SetCR1(v uint32) { f.cr1 = v }

func (f *fakeBackend) ISTConfig(domain int) (bool, uint32, bool) {
	return f.istTwoLevel[domain], f.istL2size[domain], f.istValid[domain]
}
func (f *fakeBackend) ISTBase(domain int) uint64 { return f.istBase[domain] }
func (f *fakeBackend) SetISTCFGR(domain int, twoLevel bool, l2size uint32) bool {
	if f.istValid[domain] {
		return false
	}
	f.istTwoLevel[domain], f.istL2size[domain] = twoLevel, l2size
	return true
}
func (f *fakeBackend) SetISTBASER(domain int, base uint64, valid bool) bool {
	wasValid := f.istValid[domain]
	f.istBase[domain] = base
	if valid && !wasValid {
		if f.istL2size[domain] < MinL2Size {
			f.istL2size[domain] = MinL2Size
		}
	}
	f.istValid[domain] = valid
	return true
}

func (f *fakeBackend) SPISelect(id uint32) { f.spiSel = id }
func (f *fakeBackend) SPISelected() uint32 { return f.spiSel }
func (f *fakeBackend) SPIReachable(id uint32) bool { return id < f.spiMax }
func (f *fakeBackend) SPIConfig(id uint32) (bool, bool, uint8, bool) {
	if id >= f.spiMax {
		return false, false, 0, false
	}
	return f.spiEnabled[id], f.spiEdge[id], f.spiPrio[id], true
}
func (f *fakeBackend) SetSPIConfig(id uint32, enabled, edge bool, prio uint8) bool {
	if id >= f.spiMax {
		return false
	}
	f.spiEnabled[id], f.spiEdge[id], f.spiPrio[id] = enabled, edge, prio
	return true
}
func (f *fakeBackend) SPIDomain(id uint32) (int, bool) {
	if id >= f.spiMax {
		return 0, false
	}
	return f.spiDomain[id], true
}
func (f *fakeBackend) SetSPIDomain(id uint32, domain int) bool {
	if id >= f.spiMax {
		return false
	}
	f.spiDomain[id] = domain
	return true
}
func (f *fakeBackend) Resample(id uint32) bool {
	if id >= f.spiMax {
		return false
	}
	f.resampleLog = append(f.resampleLog, id)
	return true
}

func (f *fakeBackend) PESelect(id uint32) { f.peSel = id }
func (f *fakeBackend) PESelected() uint32 { return f.peSel }
func (f *fakeBackend) PEStatus(id uint32) (bool, bool) {
	if id >= f.peMax {
		return false, false
	}
	return true, true
}

func (f *fakeBackend) MapL2ISTE(domain int, id uint32) bool {
	f.mapCalls = append(f.mapCalls, id)
	return id < 1024
}

func TestCR0ReadWrite(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	file.Write32(IRS_CR0, CR0_IRSEN)
	if got := file.Read32(IRS_CR0); got != CR0_IRSEN {
		t.Errorf("got %#x, want %#x", got, CR0_IRSEN)
	}
}

func TestCR1ReadWrite(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	file.Write32(IRS_CR1, 0x7)
	if got := file.Read32(IRS_CR1); got != 0x7 {
		t.Errorf("got %#x, want 0x7", got)
	}
}

func TestSPISelectThenCfgr(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	file.Write32(IRS_SPI_SELR, 5)
	file.Write32(IRS_SPI_CFGR, SPICFGR_ENABLE|SPICFGR_EDGE|(12<<SPICFGR_PRIO_SHIFT))

	got := file.Read32(IRS_SPI_CFGR)
	want := uint32(SPICFGR_ENABLE | SPICFGR_EDGE | (12 << SPICFGR_PRIO_SHIFT))
	if got != want {
		t.Errorf("got %#x, want %#x", got, want)
	}
}

func TestSPICfgrOnUnreachableSPIReturnsZero(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)
	file.Write32(IRS_SPI_SELR, 999)

	if got := file.Read32(IRS_SPI_CFGR); got != 0 {
		t.Errorf("expected RAZ 0 for unreachable SPI, got %#x", got)
	}
}

func TestSPIStatusRReflectsReachability(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	file.Write32(IRS_SPI_SELR, 5)
	if got := file.Read32(IRS_SPI_STATUSR); got&SPISTATUSR_V == 0 {
		t.Errorf("expected SPISTATUSR_V set for a reachable SPI, got %#x", got)
	}

	file.Write32(IRS_SPI_SELR, 999)
	if got := file.Read32(IRS_SPI_STATUSR); got&SPISTATUSR_V != 0 {
		t.Errorf("expected SPISTATUSR_V clear for an unreachable SPI, got %#x", got)
	}
}

func TestSPIResamplerWriteInvokesBackend(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	file.Write32(IRS_SPI_SELR, 7)
	file.Write32(IRS_SPI_RESAMPLER, 1)

	if len(b.resampleLog) != 1 || b.resampleLog[0] != 7 {
		t.Errorf("expected Resample(7) to be invoked once, got %v", b.resampleLog)
	}
}

func TestReservedOffsetIsRAZWI(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	file.Write32(0x0f00, 0xffffffff) // reserved, should be a no-op
	if got := file.Read32(0x0f00); got != 0 {
		t.Errorf("reserved offset should read as zero, got %#x", got)
	}
}

func TestIDR0ComposesIRSIDAndRealmBit(t *testing.T) {
	b := newFakeBackend()
	b.irsid = 5
	file := NewFile(b)

	if got := file.Read32(IRS_IDR0); got != 5<<16 {
		t.Errorf("got %#x, want %#x", got, uint32(5<<16))
	}

	b.realmImplemented = true
	if got := file.Read32(IRS_IDR0); got != 5<<16|IDR0_REALM {
		t.Errorf("got %#x, want %#x", got, uint32(5<<16|IDR0_REALM))
	}

	file.Write32(IRS_IDR0, 0xdeadbeef) // WI
	if got := file.Read32(IRS_IDR0); got != 5<<16|IDR0_REALM {
		t.Errorf("IDR0 should be unaffected by writes, got %#x", got)
	}
}

func TestIIDRAndAIDRAreFixed(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	if got := file.Read32(IRS_IIDR); got != IIDRValue {
		t.Errorf("got %#x, want %#x", got, IIDRValue)
	}
	if got := file.Read32(IRS_AIDR); got != AIDRValue {
		t.Errorf("got %#x, want %#x", got, AIDRValue)
	}
}

func TestSyncAndISTStatusReadAsDone(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	if got := file.Read32(IRS_SYNC_STATUSR); got != 1 {
		t.Errorf("IRS_SYNC_STATUSR should read 1, got %#x", got)
	}
	if got := file.Read32(IRS_IST_STATUSR); got != 1 {
		t.Errorf("IRS_IST_STATUSR should read 1, got %#x", got)
	}
}

func TestIdentificationBlockReadsCoreSightMagic(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	offsets := []uint64{IRS_IDREGS_BASE + 32, IRS_IDREGS_BASE + 36, IRS_IDREGS_BASE + 40, IRS_IDREGS_BASE + 44}
	want := []uint32{0x0D, 0xF0, 0x05, 0xB1}
	for i, off := range offsets {
		if got := file.Read32(off); got != want[i] {
			t.Errorf("offset %#x: got %#x, want %#x", off, got, want[i])
		}
	}
	file.Write32(IRS_IDREGS_BASE+32, 0xffffffff)
	if got := file.Read32(IRS_IDREGS_BASE + 32); got != 0x0D {
		t.Errorf("identification block should be read-only, got %#x", got)
	}
}

func TestISTCFGRLockedWhileBASERValid(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	file.Write32(IRS_IST_CFGR, ISTCFGR_TWOLVL|(7<<ISTCFGR_L2SZ_SHIFT))
	file.Write64(IRS_IST_BASER, 0x10000|ISTBASER_VALID)

	file.Write32(IRS_IST_CFGR, 0) // attempt to change shape while VALID: must be ignored
	got := file.Read32(IRS_IST_CFGR)
	if got&ISTCFGR_TWOLVL == 0 {
		t.Errorf("IST_CFGR write while VALID must be refused, got %#x", got)
	}
}

func TestISTBASER64BitRoundTrip(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	const base = uint64(0x123000)
	file.Write64(IRS_IST_BASER, base|ISTBASER_VALID)

	got := file.Read64(IRS_IST_BASER)
	if got&ISTBASER_VALID == 0 {
		t.Errorf("expected VALID bit set after write, got %#x", got)
	}
	if got&ISTBASER_ADDR_MASK != base {
		t.Errorf("got base %#x, want %#x", got&ISTBASER_ADDR_MASK, base)
	}

	file.Write64(IRS_IST_BASER, base) // VALID clear
	got = file.Read64(IRS_IST_BASER)
	if got&ISTBASER_VALID != 0 {
		t.Errorf("expected VALID bit clear, got %#x", got)
	}
}

func TestMapL2ISTRDispatchesToBackend(t *testing.T) {
	b := newFakeBackend()
	file := NewFile(b)

	file.Write32(IRS_MAP_L2_ISTR, 42)
	if len(b.mapCalls) != 1 || b.mapCalls[0] != 42 {
		t.Errorf("expected MapL2ISTE(_, 42) to be invoked once, got %v", b.mapCalls)
	}
}
