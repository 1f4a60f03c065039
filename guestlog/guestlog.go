// Package guestlog is the single channel for guest-visible error
// conditions across the whole GICv5 core: reserved-register accesses,
// malformed ISTEs, stream-protocol commands against unreachable
// interrupts. It is a standalone package (rather than living in the root
// gicv5 package) specifically so the regs, ist and stream packages can log
// through it without importing the root package and creating a cycle —
// the same reason devices/serial.go keeps the InterruptRaiser interface
// out of the hypervisor package that ultimately implements it.
package guestlog

import (
	"log"
	"os"
)

// Log is the destination for guest error reports. Tests may redirect it.
var Log = log.New(os.Stderr, "gicv5: guest error: ", log.LstdFlags)

// Errorf records a guest-visible error condition. The underlying register
// access or command is still expected to complete as RAZ/WI (or a no-op),
// per spec.md §7.
func Errorf(format string, args ...interface{}) {
	Log.Printf(format, args...)
}
