// Package stream implements the GICv5 Stream Protocol command set as a
// small interface plus a Dispatcher that decodes a wire-shaped Command
// into a call against that interface, per Design note 1 ("expose it as a
// set of operations on a trait/interface, not free functions reaching into
// IRS internals"). The dispatch table itself is grounded on
// devices/iobus.go's IOBus.HandleIO: a map-free switch over a small fixed
// command set, matching the protocol's synchronous, single-command-at-a-
// time nature (spec.md §5 — no suspension points).
package stream

import "gicv5/guestlog"

// Op identifies one Stream Protocol command.
type Op int

const (
	OpSetPriority Op = iota
	OpSetEnabled
	OpSetPending
	OpSetHandling
	OpSetTarget
	OpRequestConfig
	OpActivate
	OpDeactivate
)

// Kind distinguishes the ID space a command addresses: PPI, LPI, or SPI.
// Mirrors gicv5.InterruptKind without importing the root package, the same
// local-duplication pattern HandlingMode and TriggerMode already use
// elsewhere in this tree to avoid an import cycle back into stream.
type Kind int

const (
	KindPPI Kind = 1
	KindLPI Kind = 2
	KindSPI Kind = 3
)

// HandlingMode is the interrupt's handling mode: Edge clears PENDING the
// moment the interrupt is acknowledged/activated; Level leaves PENDING for
// the guest (or, for a wired SPI, the line's resampled state) to clear.
type HandlingMode int

const (
	HandlingEdge HandlingMode = iota
	HandlingLevel
)

// Command is the decoded form of one Stream Protocol message. Virtual
// marks a command addressed at a virtual (guest-scheduled) interrupt
// context; this core only implements the physical stream, so Dispatch
// refuses any command with Virtual set.
type Command struct {
	Op       Op
	Domain   int
	ID       uint32
	Kind     Kind
	Virtual  bool
	Priority uint8
	Enabled  bool
	Pending  bool
	Handling HandlingMode
	Target   uint32
}

// Commands is the set of operations the Stream Protocol drives against the
// IRS. Every mutating command is specified (spec.md §4.8) to leave HPPI
// and wake-line state freshly recomputed before it returns — implementers
// must not defer that recompute to a later poll.
type Commands interface {
	SetPriority(domain int, id uint32, kind Kind, prio uint8) bool
	SetEnabled(domain int, id uint32, kind Kind, enabled bool) bool
	SetPending(domain int, id uint32, kind Kind, pending bool) bool
	SetHandling(domain int, id uint32, kind Kind, mode HandlingMode) bool
	SetTarget(domain int, id uint32, kind Kind, iaffid uint32) bool
	RequestConfig(domain int, id uint32, kind Kind) (enabled bool, prio uint8, ok bool)
	Activate(domain int, id uint32, kind Kind) bool
	Deactivate(domain int, id uint32, kind Kind) bool
}

// Dispatcher decodes Commands and applies them against a Commands
// implementation (in practice *gicv5.IRS).
type Dispatcher struct {
	target Commands
}

// NewDispatcher builds a Dispatcher over target.
func NewDispatcher(target Commands) *Dispatcher {
	return &Dispatcher{target: target}
}

// Dispatch applies cmd and reports whether the command completed. A
// command against an unreachable SPI/LPI returns promptly with ok=false
// and a logged guest error rather than hanging or silently reusing stale
// state — this is the fix for the "apparent hang on unreachable SPI" issue
// noted against the distilled source. A virtual or out-of-range-kind
// command is refused the same way, never silently coerced to a physical
// or default kind.
func (d *Dispatcher) Dispatch(cmd Command) bool {
	if cmd.Virtual {
		guestlog.Errorf("stream: virtual stream commands are not implemented (op %d)", cmd.Op)
		return false
	}
	if cmd.Kind < KindPPI || cmd.Kind > KindSPI {
		guestlog.Errorf("stream: command with invalid kind %d (op %d)", cmd.Kind, cmd.Op)
		return false
	}

	switch cmd.Op {
	case OpSetPriority:
		return d.target.SetPriority(cmd.Domain, cmd.ID, cmd.Kind, cmd.Priority)
	case OpSetEnabled:
		return d.target.SetEnabled(cmd.Domain, cmd.ID, cmd.Kind, cmd.Enabled)
	case OpSetPending:
		return d.target.SetPending(cmd.Domain, cmd.ID, cmd.Kind, cmd.Pending)
	case OpSetHandling:
		return d.target.SetHandling(cmd.Domain, cmd.ID, cmd.Kind, cmd.Handling)
	case OpSetTarget:
		return d.target.SetTarget(cmd.Domain, cmd.ID, cmd.Kind, cmd.Target)
	case OpRequestConfig:
		_, _, ok := d.target.RequestConfig(cmd.Domain, cmd.ID, cmd.Kind)
		return ok
	case OpActivate:
		return d.target.Activate(cmd.Domain, cmd.ID, cmd.Kind)
	case OpDeactivate:
		return d.target.Deactivate(cmd.Domain, cmd.ID, cmd.Kind)
	default:
		guestlog.Errorf("stream: unknown command op %d", cmd.Op)
		return false
	}
}
