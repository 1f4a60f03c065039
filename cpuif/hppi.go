package cpuif

import "gicv5/wake"

// RecomputeHPPI re-derives the highest priority pending interrupt across
// this CPU's PPIs and the IRS-forwarded SPI/LPI candidate, then drives the
// wake lines accordingly. It is grounded on devices/pic.go's
// GetInterruptVector bit-scan, generalized from "8 bits, lowest index
// wins" to "PPIs plus one forwarded candidate, lowest priority value
// wins, ties broken by PPI line before the forwarded candidate".
//
// Every stream-protocol command and every PPI state change must call this
// after mutating state, per Design note 4: HPPI and wake-line state are
// never left stale between calls. When ICC_CR0_EL1.EN is clear for domain,
// the interface reports idle regardless of any pending state.
func (c *CPUInterface) RecomputeHPPI(domain int) {
	if !c.Enabled(domain) {
		c.hppiCache = Candidate{Priority: uint8(PrioIdle)}
		c.hppiValid = false
		c.updateWakeLines(domain)
		return
	}

	best := Candidate{Priority: uint8(PrioIdle)}
	found := false

	for i := range c.ppis {
		p := &c.ppis[i]
		if !p.Enabled || !p.Pending || p.Active {
			continue
		}
		if !found || p.Priority < best.Priority {
			best = Candidate{ID: uint32(i), Priority: p.Priority, Kind: KindPPI}
			found = true
		}
	}

	if c.irsCandidate != nil {
		if cand, ok := c.irsCandidate(domain); ok {
			if !found || cand.Priority < best.Priority {
				best = cand
				found = true
			}
		}
	}

	c.hppiCache = best
	c.hppiValid = found

	c.updateWakeLines(domain)
}

// PrioIdle mirrors gicv5.PrioIdle; kept local, see cpuif.go's TriggerMode
// comment for why.
const PrioIdle = 0xff

// HPPI returns the current highest priority pending interrupt, if any.
func (c *CPUInterface) HPPI() (Candidate, bool) {
	return c.hppiCache, c.hppiValid
}

// runningPriority returns the priority of the currently-active interrupt,
// or PrioIdle if none is active (APR's stack is empty).
func (c *CPUInterface) runningPriority(domain int) uint8 {
	apr := c.iccAPR[domain]
	if apr == 0 {
		return PrioIdle
	}
	for i := 0; i < APRDepth; i++ {
		if apr&(1<<uint(i)) != 0 {
			return uint8(i)
		}
	}
	return PrioIdle
}

// updateWakeLines decides which of IRQ/FIQ/NMI should be asserted for the
// current HPPI relative to the running priority and the priority mask
// (ICC_PCR_EL1), and drives the wake lines. Priority 0 (superpriority) is
// always routed to the NMI line regardless of mask, per spec.md §4. A
// candidate is otherwise eligible to wake IRQ only if its priority is at
// or above the mask's sensitivity (<=) and strictly higher than whatever
// is currently running (<).
func (c *CPUInterface) updateWakeLines(domain int) {
	if !c.hppiValid {
		c.driveWakeLines(false, false, false)
		return
	}

	mask := uint8(c.iccPCR[domain])
	running := c.runningPriority(domain)

	if c.hppiCache.Priority == 0 {
		c.driveWakeLines(false, false, true)
		return
	}

	eligible := c.hppiCache.Priority <= mask && c.hppiCache.Priority < running
	c.driveWakeLines(eligible, false, false)
}

// driveWakeLines asserts or deasserts the three wake lines. It is called
// with the system's single big lock held (per spec.md §5), so each Assert/
// Deassert call must not block — wake.Line's eventfd write is a
// non-blocking syscall, matching VCPU.InjectInterrupt's direct ioctl call
// from inside the VM run loop.
func (c *CPUInterface) driveWakeLines(irq, fiq, nmi bool) {
	driveLine(c.wakeIRQ, irq)
	driveLine(c.wakeFIQ, fiq)
	driveLine(c.wakeNMI, nmi)
}

func driveLine(l *wake.Line, assert bool) {
	if l == nil {
		return
	}
	if assert {
		l.Assert()
	} else {
		l.Deassert()
	}
}

// hppivBit marks a delivered INTID as coming from a genuine HPPI read
// (as opposed to the architectural "no pending interrupt" sentinel id 0,
// which would otherwise be indistinguishable from a real SPI/LPI id 0).
// Bits [28:24] are unused by the 3-bit-kind + 24-bit-id encoding below, so
// this is a free bit position, not an architected field.
const hppivBit uint32 = 1 << 24

// encodeIntid packs kind and id into the delivered INTID shape: the top 3
// bits carry the interrupt kind (PPI=1, LPI=2, SPI=3), the low 24 bits
// carry the ID.
func encodeIntid(kind Kind, id uint32) uint32 {
	return (uint32(kind) << 29) | (id & 0xFFFFFF)
}

// acknowledge implements the shared GICR_CDIA/GICR_CDNMIA logic: it reads
// the current HPPI, refuses it if its NMI-ness (priority 0 is the only
// superpriority, hence the only NMI) doesn't match wantNMI or, below
// superpriority, if it fails the same mask/running-priority gate as the
// IRQ wake line, pushes its priority onto the APR stack, and activates
// it — locally for a PPI, through the IRS callback for an SPI/LPI.
func (c *CPUInterface) acknowledge(domain int, wantNMI bool) (uint32, bool) {
	if !c.hppiValid {
		return 0, false
	}
	cand := c.hppiCache
	isNMI := cand.Priority == 0
	if isNMI != wantNMI {
		return 0, false
	}
	if !isNMI && (cand.Priority > uint8(c.iccPCR[domain]) || cand.Priority >= c.runningPriority(domain)) {
		return 0, false
	}

	if cand.Priority < APRDepth {
		c.iccAPR[domain] |= 1 << uint(cand.Priority)
	}

	switch cand.Kind {
	case KindPPI:
		if int(cand.ID) < numPPIs {
			p := &c.ppis[cand.ID]
			p.Active = true
			if p.Trigger == TriggerEdge {
				p.Pending = false
			}
		}
	case KindSPI, KindLPI:
		if c.activate != nil {
			c.activate(domain, cand.ID, cand.Kind)
		}
	}

	c.RecomputeHPPI(domain)
	return encodeIntid(cand.Kind, cand.ID) | hppivBit, true
}

// Acknowledge is GICR_CDIA: it acknowledges the current HPPI as long as it
// is not the superpriority (NMI) interrupt and it passes the priority mask
// and running-priority gate, returning 0 if there is none, it is an NMI,
// or it is gated.
func (c *CPUInterface) Acknowledge(domain int) (uint32, bool) {
	return c.acknowledge(domain, false)
}

// AcknowledgeNMI is GICR_CDNMIA: it acknowledges the current HPPI only if
// it is the superpriority (NMI) interrupt, returning 0 otherwise.
func (c *CPUInterface) AcknowledgeNMI(domain int) (uint32, bool) {
	return c.acknowledge(domain, true)
}

// EOI is GIC_CDEOI: it clears the lowest (highest-priority) active bit in
// the APR stack, mirroring RTCDevice's read-clears-flags idiom but applied
// to a write-to-deactivate register instead of a read-to-clear one, then
// rechecks the wake lines since ending one active priority can re-assert
// a lower-priority interrupt that was previously masked by "running".
func (c *CPUInterface) EOI(domain int, id uint32) {
	apr := c.iccAPR[domain]
	if apr != 0 {
		lowest := apr & (-apr)
		c.iccAPR[domain] = apr &^ lowest
	}
	if id < numPPIs {
		c.ppis[id].Active = false
	}
	// A level-handling interrupt may still be pending once deactivated
	// (its source hasn't been serviced, only "running"), so the HPPI cache
	// must be recomputed here, not just the wake lines against the stale
	// cache from before this EOI.
	c.RecomputeHPPI(domain)
}

// SetPriorityMask programs ICC_PCR_EL1 for the given domain and rechecks
// the wake lines, since raising the mask can re-assert IRQ for a
// candidate that was previously masked.
func (c *CPUInterface) SetPriorityMask(domain int, mask uint8) {
	c.iccPCR[domain] = uint32(mask)
	c.updateWakeLines(domain)
}

// PriorityMask reads ICC_PCR_EL1 for the given domain.
func (c *CPUInterface) PriorityMask(domain int) uint8 {
	return uint8(c.iccPCR[domain])
}

// HighestActivePriority is ICC_HAPR_EL1.
func (c *CPUInterface) HighestActivePriority(domain int) uint8 {
	return c.runningPriority(domain)
}

// SetCR0 programs ICC_CR0_EL1 (the interface enable register) and
// recomputes the HPPI, since the EN bit gates RecomputeHPPI's result.
func (c *CPUInterface) SetCR0(domain int, value uint32) {
	c.iccCR0[domain] = value
	c.RecomputeHPPI(domain)
}

// CR0 reads ICC_CR0_EL1.
func (c *CPUInterface) CR0(domain int) uint32 {
	return c.iccCR0[domain]
}

// Enabled reports whether EN (bit 0) is set in this domain's ICC_CR0_EL1.
func (c *CPUInterface) Enabled(domain int) bool {
	return c.iccCR0[domain]&1 != 0
}
