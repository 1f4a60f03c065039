// Package spi holds the SPI state table: one record per SPI line tracking
// enable, pending, active, priority, trigger mode, target CPU and domain.
// It is the GICv5 analogue of the 8259A PIC's IRR/ISR/IMR register triad in
// devices/pic.go, generalized from 8 fixed lines to an arbitrary,
// board-configured SPI range.
package spi

// HandlingMode governs whether PENDING clears on acknowledge/activate:
// Edge clears it there, Level leaves it for the guest (or the wire, via
// Resample) to clear explicitly. Mirrors stream.HandlingMode without
// importing it, for the same reason TriggerMode is kept local below.
type HandlingMode int

const (
	HandlingEdge HandlingMode = iota
	HandlingLevel
)

// Record is one SPI line's architectural state.
type Record struct {
	Enabled  bool
	Pending  bool
	Active   bool
	Priority uint8
	Trigger  TriggerMode
	Target   uint32 // IAFFID of the routed CPU
	Domain   int
	Handling HandlingMode

	Level bool // the wire's current asserted/deasserted state
}

// TriggerMode mirrors gicv5.TriggerMode without importing the root package,
// keeping spi free of a dependency cycle back to gicv5 (the same reason
// devices/serial.go keeps InterruptRaiser local instead of importing the
// hypervisor package that consumes it).
type TriggerMode int

const (
	TriggerLevel TriggerMode = iota
	TriggerEdge
)

// Table is the full SPI state table for one board, indexed by SPI ID
// relative to the configured SPI base.
type Table struct {
	base    uint32
	records []Record
}

// NewTable allocates a table covering count SPIs starting at base.
func NewTable(base, count uint32) *Table {
	return &Table{base: base, records: make([]Record, count)}
}

// Reachable reports whether id falls within this table's configured range.
func (t *Table) Reachable(id uint32) bool {
	if id < t.base {
		return false
	}
	idx := id - t.base
	return idx < uint32(len(t.records))
}

// Get returns a pointer to id's record for in-place mutation, or nil if id
// is unreachable.
func (t *Table) Get(id uint32) *Record {
	if !t.Reachable(id) {
		return nil
	}
	return &t.records[id-t.base]
}

// SetLevel is the wire event set_spi(id, level): it updates the live wire
// state and, if the level actually changed, resamples PENDING/HM against
// the current trigger mode.
func (t *Table) SetLevel(id uint32, level bool) bool {
	r := t.Get(id)
	if r == nil {
		return false
	}
	if r.Level == level {
		return true
	}
	r.Level = level
	t.sample(r)
	return true
}

// Resample re-applies the current wire level against the current trigger
// mode, without a level change — this is what IRS_SPI_RESAMPLER drives.
func (t *Table) Resample(id uint32) bool {
	r := t.Get(id)
	if r == nil {
		return false
	}
	t.sample(r)
	return true
}

// sample implements spi_sample: level=1 always posts PENDING (HM mirrors
// the trigger mode); level=0 only clears PENDING for a level-triggered SPI.
func (t *Table) sample(r *Record) {
	if r.Level {
		r.Pending = true
		if r.Trigger == TriggerEdge {
			r.Handling = HandlingEdge
		} else {
			r.Handling = HandlingLevel
		}
		return
	}
	if r.Trigger == TriggerLevel {
		r.Pending = false
	}
}

// SetTriggerMode reconfigures id's trigger sensitivity, applying the
// trigger-mode-change rules: switching to Level while the wire is asserted
// posts PENDING (HM=Level), otherwise clears it; switching to Edge while
// the wire is asserted clears PENDING (the edge is considered consumed by
// the mode change, not re-latched).
func (t *Table) SetTriggerMode(id uint32, tm TriggerMode) bool {
	r := t.Get(id)
	if r == nil {
		return false
	}
	if tm != r.Trigger {
		switch tm {
		case TriggerLevel:
			if r.Level {
				r.Pending = true
				r.Handling = HandlingLevel
			} else {
				r.Pending = false
			}
		case TriggerEdge:
			if r.Level {
				r.Pending = false
			}
		}
	}
	r.Trigger = tm
	return true
}

// Range reports this table's [base, base+count) coverage.
func (t *Table) Range() (base, count uint32) {
	return t.base, uint32(len(t.records))
}
