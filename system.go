package gicv5

import (
	"fmt"
	"sync"

	"gicv5/cpuif"
	"gicv5/gpa"
	"gicv5/regs"
	"gicv5/stream"
	"gicv5/wake"
)

// SystemConfig describes one board's worth of GICv5 hardware at realize
// time, generalized from virtual_machine.go's flat NewVirtualMachine
// config struct (memory size, number of VCPUs, disk/kernel paths) to this
// domain's equivalents.
type SystemConfig struct {
	IRSID            uint32
	SPIBase          uint32
	SPIRange         uint32 // total addressable SPI ID space (architectural cap)
	NumSPIs          uint32 // number of SPIs actually implemented, <= SPIRange
	NumCPUs          int
	IAFFIDs          []uint32 // optional; defaults to 0..NumCPUs-1
	RealmImplemented bool
	UseEventfdWake   bool // false uses in-memory wake lines (tests, CLI dry runs)
}

const maxSPIRange = 1 << 24

// System is the top-level GICv5 emulation core: one IRS plus one CPU
// interface per CPU, realized together the way virtual_machine.go's
// NewVirtualMachine constructs the PIC/PIT/RTC/NIC device set and wires
// each into the shared IOBus before any VCPU runs.
type System struct {
	mu sync.Mutex

	irs  *IRS
	cpus []*cpuif.CPUInterface
	regs *regs.File

	wakeLines []wakeTriplet
}

type wakeTriplet struct {
	irq, fiq, nmi *wake.Line
}

// Realize validates cfg and constructs the IRS and per-CPU interfaces. It
// returns a wrapped error on any invalid configuration, matching
// NewVirtualMachine's realize-time validation style.
func Realize(mem gpa.AddressSpace, cfg SystemConfig) (*System, error) {
	if cfg.NumCPUs <= 0 {
		return nil, fmt.Errorf("gicv5: realize: NumCPUs must be positive, got %d", cfg.NumCPUs)
	}
	if cfg.SPIBase >= maxSPIRange {
		return nil, fmt.Errorf("gicv5: realize: SPIBase %#x exceeds architectural SPI range", cfg.SPIBase)
	}
	if uint64(cfg.SPIBase)+uint64(cfg.NumSPIs) > uint64(cfg.SPIRange) {
		return nil, fmt.Errorf("gicv5: realize: SPIBase+NumSPIs (%d) exceeds configured SPIRange (%d)",
			uint64(cfg.SPIBase)+uint64(cfg.NumSPIs), cfg.SPIRange)
	}
	if cfg.SPIRange > maxSPIRange {
		return nil, fmt.Errorf("gicv5: realize: SPIRange %d exceeds architectural cap %d", cfg.SPIRange, maxSPIRange)
	}
	if cfg.IRSID >= 1<<16 {
		return nil, fmt.Errorf("gicv5: realize: IRSID %#x exceeds 16-bit field width", cfg.IRSID)
	}

	iaffids := cfg.IAFFIDs
	if iaffids == nil {
		iaffids = make([]uint32, cfg.NumCPUs)
		for i := range iaffids {
			iaffids[i] = uint32(i)
		}
	}
	if len(iaffids) != cfg.NumCPUs {
		return nil, fmt.Errorf("gicv5: realize: len(IAFFIDs)=%d does not match NumCPUs=%d", len(iaffids), cfg.NumCPUs)
	}
	seen := make(map[uint32]bool, len(iaffids))
	for _, id := range iaffids {
		if seen[id] {
			return nil, fmt.Errorf("gicv5: realize: duplicate IAFFID %d", id)
		}
		seen[id] = true
	}

	irs := NewIRS(mem, IRSConfig{
		IRSID:            cfg.IRSID,
		SPIBase:          cfg.SPIBase,
		NumSPIs:          cfg.NumSPIs,
		RealmImplemented: cfg.RealmImplemented,
		NumPEs:           cfg.NumCPUs,
	})

	sys := &System{irs: irs}
	sys.regs = regs.NewFile(irs)

	for i := 0; i < cfg.NumCPUs; i++ {
		triplet, err := sys.newWakeTriplet(cfg.UseEventfdWake, i)
		if err != nil {
			return nil, fmt.Errorf("gicv5: realize: cpu %d: %w", i, err)
		}
		sys.wakeLines = append(sys.wakeLines, triplet)

		iaffid := iaffids[i]
		candidateFn := func(domain int) (cpuif.Candidate, bool) {
			id, prio, kind, ok := irs.CandidateFor(domain, iaffid)
			return cpuif.Candidate{ID: id, Priority: prio, Kind: cpuif.Kind(kind)}, ok
		}
		activateFn := func(domain int, id uint32, kind cpuif.Kind) bool {
			return irs.Activate(domain, id, stream.Kind(kind))
		}
		cpu := cpuif.New(i, candidateFn, activateFn, triplet.irq, triplet.fiq, triplet.nmi)
		cpu.SetIAFFID(iaffid)
		cpu.Reset()
		sys.cpus = append(sys.cpus, cpu)
		irs.cpus = append(irs.cpus, cpu)
	}

	return sys, nil
}

func (s *System) newWakeTriplet(useEventfd bool, cpuIndex int) (wakeTriplet, error) {
	if !useEventfd {
		return wakeTriplet{
			irq: wake.NewLocalLine(fmt.Sprintf("cpu%d-irq", cpuIndex)),
			fiq: wake.NewLocalLine(fmt.Sprintf("cpu%d-fiq", cpuIndex)),
			nmi: wake.NewLocalLine(fmt.Sprintf("cpu%d-nmi", cpuIndex)),
		}, nil
	}
	irq, err := wake.NewLine(fmt.Sprintf("cpu%d-irq", cpuIndex))
	if err != nil {
		return wakeTriplet{}, err
	}
	fiq, err := wake.NewLine(fmt.Sprintf("cpu%d-fiq", cpuIndex))
	if err != nil {
		return wakeTriplet{}, err
	}
	nmi, err := wake.NewLine(fmt.Sprintf("cpu%d-nmi", cpuIndex))
	if err != nil {
		return wakeTriplet{}, err
	}
	return wakeTriplet{irq: irq, fiq: fiq, nmi: nmi}, nil
}

// Reset performs a power-on reset of the IRS and every CPU interface.
func (s *System) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.irs.Reset()
	for _, c := range s.cpus {
		c.Reset()
	}
}

// CPU returns the CPU interface for logical CPU i, or nil if out of range.
func (s *System) CPU(i int) *cpuif.CPUInterface {
	if i < 0 || i >= len(s.cpus) {
		return nil
	}
	return s.cpus[i]
}

// NumCPUs reports how many CPU interfaces this system realized.
func (s *System) NumCPUs() int { return len(s.cpus) }

// Commands returns the Stream Protocol command surface for this system's
// IRS.
func (s *System) Commands() stream.Commands { return s.irs }

// SetSPI drives the wire-level event set_spi(id, level) from §4.4 — a
// board's wired interrupt line changing state — through IRS.SetSPILevel,
// under the big lock. Reset, SetSPI and the MMIO handlers take that lock;
// the Commands() surface and the CPU interfaces returned by CPU(i) do not.
// This is distinct from the Stream Protocol's SetPending, which a guest issues
// directly and which has different level-0 semantics (see IRS.SetPending).
func (s *System) SetSPI(domain int, id uint32, level bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.irs.SetSPILevel(domain, id, level)
}

// MMIOHandler dispatches a config-frame MMIO access on behalf of domain,
// taking the big lock for the duration of the access, matching
// VirtualMachine.HandleMMIO's single dispatch point per VCPU exit.
func (s *System) MMIOHandler(domain int) MMIOHandlerFunc {
	return func(offset uint64, write bool, value uint32) uint32 {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.regs.SetAccessDomain(domain)
		if write {
			s.regs.Write32(offset, value)
			return 0
		}
		return s.regs.Read32(offset)
	}
}

// MMIOHandlerFunc is a single config-frame register access: offset is
// relative to the IRS's MMIO base, write selects a write (value is the
// data to store) or a read (the return value is the data read).
type MMIOHandlerFunc func(offset uint64, write bool, value uint32) uint32

// MMIOHandler64 dispatches a 64-bit config-frame MMIO access on behalf of
// domain, the access width IRS_IST_BASER requires (it carries a guest
// physical address in its high bits alongside the single VALID bit).
func (s *System) MMIOHandler64(domain int) MMIOHandlerFunc64 {
	return func(offset uint64, write bool, value uint64) uint64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.regs.SetAccessDomain(domain)
		if write {
			s.regs.Write64(offset, value)
			return 0
		}
		return s.regs.Read64(offset)
	}
}

// MMIOHandlerFunc64 is the 64-bit-access analogue of MMIOHandlerFunc.
type MMIOHandlerFunc64 func(offset uint64, write bool, value uint64) uint64

// Close releases every CPU interface's wake lines.
func (s *System) Close() error {
	var first error
	for _, t := range s.wakeLines {
		for _, l := range []*wake.Line{t.irq, t.fiq, t.nmi} {
			if err := l.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
