package gicv5

import "gicv5/guestlog"

// GuestLog is the single channel for guest-visible error conditions; it is
// an alias for guestlog.Log so callers inside the root package can keep
// writing gicv5.GuestLog/gicv5.GuestErrorf while regs, ist and stream log
// through guestlog directly (avoiding an import cycle back to this
// package).
var GuestLog = guestlog.Log

// GuestErrorf records a guest-visible error condition.
func GuestErrorf(format string, args ...interface{}) {
	guestlog.Errorf(format, args...)
}
