// Package gpa is the GICv5 core's view of guest physical memory: the
// narrow interface the IST walker and LPI cache use to read and write
// interrupt state tables, and a concrete mmap-backed implementation for
// standalone use outside a full VMM.
package gpa

import (
	"fmt"
	"syscall"
)

// MemTxAttrs carries the security/routing domain of a memory transaction,
// mirroring the attrs a real bus master would attach to a guest memory
// access.
type MemTxAttrs struct {
	Space  int // caller-defined domain tag, opaque to gpa
	Secure bool
}

// AddressSpace is the read/write surface the IST walker and LPI cache need
// from guest memory. Implementations report ok=false on any access that
// cannot be satisfied (out-of-range address, unmapped page), letting the
// caller treat it as an external abort without gpa needing to know what an
// abort looks like to the rest of the system.
type AddressSpace interface {
	Read32(attrs MemTxAttrs, addr uint64) (value uint32, ok bool)
	Write32(attrs MemTxAttrs, addr uint64, value uint32) (ok bool)
	Read64(attrs MemTxAttrs, addr uint64) (value uint64, ok bool)
	Write64(attrs MemTxAttrs, addr uint64, value uint64) (ok bool)
}

// GuestMemory is an anonymously-mmapped backing store for AddressSpace,
// grounded on the same syscall.Mmap(-1, 0, size, ...) allocation the VMM
// uses for the emulated guest's RAM, sized down to whatever the IST/LPI
// cache test harness or the demonstration CLI needs rather than a full
// guest's worth of RAM.
type GuestMemory struct {
	mem []byte
}

// NewGuestMemory allocates size bytes of anonymous memory via mmap.
func NewGuestMemory(size int) (*GuestMemory, error) {
	mem, err := syscall.Mmap(-1, 0, size,
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED|syscall.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("gpa: mmap %d bytes: %w", size, err)
	}
	return &GuestMemory{mem: mem}, nil
}

// Close unmaps the backing memory. Safe to call once.
func (g *GuestMemory) Close() error {
	if g.mem == nil {
		return nil
	}
	err := syscall.Munmap(g.mem)
	g.mem = nil
	return err
}

func (g *GuestMemory) bounds(addr uint64, width int) bool {
	if addr > uint64(len(g.mem)) {
		return false
	}
	return addr+uint64(width) <= uint64(len(g.mem))
}

func (g *GuestMemory) Read32(_ MemTxAttrs, addr uint64) (uint32, bool) {
	if !g.bounds(addr, 4) {
		return 0, false
	}
	b := g.mem[addr : addr+4]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
}

func (g *GuestMemory) Write32(_ MemTxAttrs, addr uint64, value uint32) bool {
	if !g.bounds(addr, 4) {
		return false
	}
	b := g.mem[addr : addr+4]
	b[0] = byte(value)
	b[1] = byte(value >> 8)
	b[2] = byte(value >> 16)
	b[3] = byte(value >> 24)
	return true
}

func (g *GuestMemory) Read64(_ MemTxAttrs, addr uint64) (uint64, bool) {
	if !g.bounds(addr, 8) {
		return 0, false
	}
	lo, _ := g.Read32(MemTxAttrs{}, addr)
	hi, _ := g.Read32(MemTxAttrs{}, addr+4)
	return uint64(lo) | uint64(hi)<<32, true
}

func (g *GuestMemory) Write64(_ MemTxAttrs, addr uint64, value uint64) bool {
	if !g.bounds(addr, 8) {
		return false
	}
	ok1 := g.Write32(MemTxAttrs{}, addr, uint32(value))
	ok2 := g.Write32(MemTxAttrs{}, addr+4, uint32(value>>32))
	return ok1 && ok2
}
