// Package gicv5 implements the emulation core of an ARM GICv5 interrupt
// routing service (IRS) and its per-CPU interfaces: the IST/LPI cache, the
// SPI state table, the config-frame register file, the stream protocol
// command set, and HPPI selection and wake-line drive for each CPU
// interface. It does not model a CPU, a bus master, or KVM acceleration.
package gicv5

import "fmt"

// Domain identifies one of the four GICv5 security/routing domains an
// interrupt or a register access belongs to.
type Domain int

const (
	DomainS Domain = iota
	DomainNS
	DomainEL3
	DomainRealm
)

func (d Domain) String() string {
	switch d {
	case DomainS:
		return "S"
	case DomainNS:
		return "NS"
	case DomainEL3:
		return "EL3"
	case DomainRealm:
		return "Realm"
	default:
		return fmt.Sprintf("Domain(%d)", int(d))
	}
}

// EffectiveDomain applies the Realm-unimplemented downgrade: when Realm
// support is not configured, any access tagged Realm is treated as Secure,
// and EL3 accesses route to the Secure IST/SPI state the same way.
func EffectiveDomain(d Domain, realmImplemented bool) Domain {
	if d == DomainRealm && !realmImplemented {
		return DomainS
	}
	if d == DomainEL3 {
		return DomainS
	}
	return d
}

// TriggerMode is the SPI/LPI trigger sensitivity.
type TriggerMode int

const (
	TriggerLevel TriggerMode = iota
	TriggerEdge
)

// Priority is a GICv5 5-bit interrupt priority; 0 is superpriority (treated
// as non-maskable by the CPU interface), 31 is lowest real priority, and
// PrioIdle marks "no candidate" in HPPI selection.
type Priority uint8

const (
	PrioSuper Priority = 0
	PrioMin   Priority = 31
	PrioIdle  Priority = 0xff
)

// Valid reports whether p is a real 5-bit priority (not the idle sentinel).
func (p Priority) Valid() bool {
	return p <= PrioMin
}

// InterruptID identifies an SPI or LPI within its domain's ID space.
type InterruptID uint32

// InterruptKind distinguishes the ID spaces the stream protocol and the
// config-frame register file operate over. Values match the 3-bit kind
// field packed into the top of a delivered INTID (encodeIntid in hppi.go),
// so a Kind can be cast directly into that encoding without a lookup table.
type InterruptKind int

const (
	KindPPI InterruptKind = 1
	KindLPI InterruptKind = 2
	KindSPI InterruptKind = 3
)

func (k InterruptKind) String() string {
	switch k {
	case KindPPI:
		return "PPI"
	case KindLPI:
		return "LPI"
	case KindSPI:
		return "SPI"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}
