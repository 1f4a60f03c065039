// Package cpuif models one GICv5 per-CPU interface: its banked system
// registers, its PPI state array, and HPPI selection across PPIs and the
// IRS-forwarded SPI/LPI candidate. It is grounded on devices/serial.go's
// register-field struct with derived boolean state (dlabActive) and on
// devices/rtc.go's read-clears-flags idiom, generalized from one UART/RTC
// per machine to one interface per CPU.
package cpuif

import "gicv5/wake"

const numPPIs = 32
const numDomains = 4 // S, NS, EL3, Realm

// PPIState is one PPI line's local state (no IST entry backs a PPI).
type PPIState struct {
	Enabled  bool
	Pending  bool
	Active   bool
	Priority uint8
	Trigger  TriggerMode
}

// TriggerMode mirrors gicv5.TriggerMode; kept local for the same reason
// spi.TriggerMode is kept local (no import cycle back to the root
// package).
type TriggerMode int

const (
	TriggerLevel TriggerMode = iota
	TriggerEdge
)

// Kind mirrors gicv5.InterruptKind; kept local for the same reason
// TriggerMode is. Values line up with the 3-bit kind field packed into a
// delivered INTID (see encodeIntid in hppi.go).
type Kind int

const (
	KindPPI Kind = 1
	KindLPI Kind = 2
	KindSPI Kind = 3
)

// Candidate is what the IRS forwards to HPPI selection each time SPI/LPI
// state changes: the highest-priority pending-and-enabled SPI/LPI routed
// to this CPU, or ok=false if none qualifies.
type Candidate struct {
	ID       uint32
	Priority uint8
	Kind     Kind
}

// IRSCandidateFunc lets cpuif pull the current forwarded candidate without
// importing the root gicv5 package (which owns the IRS and already
// imports cpuif), the same non-owning back-reference pattern Design note 4
// calls for.
type IRSCandidateFunc func(domain int) (Candidate, bool)

// ActivateFunc lets cpuif tell the IRS to activate an SPI or LPI it has
// just acknowledged, without importing gicv5. Never called for a PPI: PPI
// activation is local state cpuif owns directly (see Acknowledge).
type ActivateFunc func(domain int, id uint32, kind Kind) bool

// APRDepth is the number of priority-stack slots APR tracks (one bit set
// per active priority group, per spec.md's "32-bit priority stack").
const APRDepth = 32

// CPUInterface is one CPU's GICv5 interface: banked registers, PPI array,
// the active-priority stack, and the wake lines used to signal IRQ/FIQ/NMI
// to whatever drives this CPU.
type CPUInterface struct {
	id     int
	iaffid uint32

	ppis [numPPIs]PPIState

	// Banked per-domain registers, indexed by the domain argument each
	// accessor takes.
	iccCR0 [numDomains]uint32
	iccPCR [numDomains]uint32
	iccAPR [numDomains]uint32 // bit N set => priority N active

	hppiCache    Candidate
	hppiValid    bool
	irsCandidate IRSCandidateFunc
	activate     ActivateFunc

	wakeIRQ *wake.Line
	wakeFIQ *wake.Line
	wakeNMI *wake.Line
}

// New constructs a CPU interface for logical CPU id, wired to fn for
// SPI/LPI candidate lookups, activate for acknowledging an SPI/LPI back
// into the IRS, and the three wake lines supplied by the caller (realize
// time, per Design note 4).
func New(id int, fn IRSCandidateFunc, activate ActivateFunc, irq, fiq, nmi *wake.Line) *CPUInterface {
	return &CPUInterface{id: id, iaffid: uint32(id), irsCandidate: fn, activate: activate, wakeIRQ: irq, wakeFIQ: fiq, wakeNMI: nmi}
}

// ID returns this interface's logical CPU index.
func (c *CPUInterface) ID() int { return c.id }

// IAFFID returns this interface's affinity identifier, used by the IRS to
// decide which SPI/LPI targets this CPU.
func (c *CPUInterface) IAFFID() uint32 { return c.iaffid }

// SetIAFFID overrides the default (CPU index) affinity identifier, for
// boards that assign non-sequential IAFFIDs.
func (c *CPUInterface) SetIAFFID(id uint32) { c.iaffid = id }

// RecomputeHPPIForDomain is RecomputeHPPI under the name the IRS's
// cpuInterfaceHandle interface expects.
func (c *CPUInterface) RecomputeHPPIForDomain(domain int) {
	c.RecomputeHPPI(domain)
}

// Reset restores architectural reset state: all PPIs level-triggered
// except PPI #3 (edge), CR0 and APR cleared and PCR set to PrioMin in every
// domain, wake lines deasserted.
func (c *CPUInterface) Reset() {
	for i := range c.ppis {
		c.ppis[i] = PPIState{Trigger: TriggerLevel}
	}
	c.ppis[3].Trigger = TriggerEdge
	for d := 0; d < numDomains; d++ {
		c.iccCR0[d] = 0
		c.iccPCR[d] = uint32(PrioMin)
		c.iccAPR[d] = 0
	}
	c.hppiValid = false
	c.driveWakeLines(false, false, false)
}

// PrioMin mirrors gicv5.PrioMin; duplicated locally to avoid importing the
// root package (see TriggerMode comment above).
const PrioMin = 31

// SetPPIPending posts a PPI, honoring trigger mode exactly as spi.Table
// does for SPIs: edge triggers latch Pending on pending=true and ignore
// pending=false, level triggers store the requested state directly.
func (c *CPUInterface) SetPPIPending(line int, pending bool) {
	if line < 0 || line >= numPPIs {
		return
	}
	p := &c.ppis[line]
	if p.Trigger == TriggerEdge {
		if pending {
			p.Pending = true
		}
		return
	}
	p.Pending = pending
}

// SetPPIEnabled enables or disables a PPI line.
func (c *CPUInterface) SetPPIEnabled(line int, enabled bool) {
	if line < 0 || line >= numPPIs {
		return
	}
	c.ppis[line].Enabled = enabled
}

// SetPPIPriority sets a PPI's priority.
func (c *CPUInterface) SetPPIPriority(line int, prio uint8) {
	if line < 0 || line >= numPPIs {
		return
	}
	c.ppis[line].Priority = prio
}
