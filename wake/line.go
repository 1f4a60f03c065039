// Package wake implements the CPU wake-line channel between a GICv5 CPU
// interface and whatever drives that CPU: an eventfd-backed Line for real
// use, and an in-memory Line from NewLocalLine for tests that don't want a real file
// descriptor. It is grounded on hypervisor/kvm.go's ioctl-based interrupt
// injection and network/tap_device.go's direct golang.org/x/sys/unix
// ioctl/fd idiom, repurposed from "inject into KVM" to "signal an eventfd"
// since this core has no KVM dependency.
package wake

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Line is a single wake signal (IRQ, FIQ or NMI) for one CPU, backed by a
// Linux eventfd so a driving loop elsewhere in the process (or another
// process, once the fd is shared) can block on it with epoll instead of
// polling CPU interface state.
type Line struct {
	fd      int
	name    string
	asserted bool
}

// NewLine creates an eventfd-backed wake line. name is used only in error
// messages and logging.
func NewLine(name string) (*Line, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("wake: eventfd for %s: %w", name, err)
	}
	return &Line{fd: fd, name: name}, nil
}

// NewLocalLine builds a wake line with no backing file descriptor, for
// unit tests that only want to observe Asserted() without a real eventfd,
// grounded on ne2000_test.go's MockInterruptRaiser pattern of a
// dependency-free double behind the same type the production path uses.
func NewLocalLine(name string) *Line {
	return &Line{fd: -1, name: name}
}

// FD returns the underlying eventfd, for a driving loop to epoll on.
func (l *Line) FD() int { return l.fd }

// Assert signals the line by writing to the eventfd counter. The write is
// non-blocking, matching the requirement (spec.md §5) that wake-line drive
// is safe to call with the system's single big lock held.
func (l *Line) Assert() {
	if l.asserted {
		return
	}
	l.asserted = true
	if l.fd < 0 {
		return
	}
	buf := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, _ = unix.Write(l.fd, buf[:])
}

// Deassert clears the line's local latch. eventfd counters are
// level-summed by the kernel, not a per-line latch, so a driving loop that
// cares about edge-vs-level behaviour drains the fd itself; Deassert only
// updates Assert's dedup state.
func (l *Line) Deassert() {
	l.asserted = false
}

// Asserted reports the line's last commanded state.
func (l *Line) Asserted() bool { return l.asserted }

// Close releases the eventfd.
func (l *Line) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}
