package gicv5

import "gicv5/ist"

// L2 ISTE bit layout (32-bit word), matching the guest-memory IST format:
// PENDING[0], ACTIVE[1], HM[2], ENABLE[3], IRM[4], HWU[10:9], PRIORITY[15:11],
// IAFFID[31:16]. ist.PendingBit already names bit 0 for the walker's own
// cache-membership bookkeeping; the remaining fields are only meaningful to
// the IRS, so they live here rather than in package ist.
const (
	lpiActiveBit uint32 = 1 << 1
	lpiHMBit     uint32 = 1 << 2
	lpiEnableBit uint32 = 1 << 3
	lpiIRMBit    uint32 = 1 << 4

	lpiHWUShift      = 9
	lpiHWUMask       = 0x3 << lpiHWUShift
	lpiPriorityShift = 11
	lpiPriorityMask  = 0x1f << lpiPriorityShift
	lpiIAFFIDShift   = 16
	lpiIAFFIDMask    = 0xffff << lpiIAFFIDShift
)

func lpiPending(word uint32) bool  { return word&ist.PendingBit != 0 }
func lpiActive(word uint32) bool   { return word&lpiActiveBit != 0 }
func lpiEnabled(word uint32) bool  { return word&lpiEnableBit != 0 }
func lpiHandling(word uint32) HandlingMode {
	if word&lpiHMBit != 0 {
		return HandlingLevel
	}
	return HandlingEdge
}
func lpiPriority(word uint32) uint8 {
	return uint8((word & lpiPriorityMask) >> lpiPriorityShift)
}
func lpiIAFFID(word uint32) uint32 {
	return (word & lpiIAFFIDMask) >> lpiIAFFIDShift
}

func setBit(word, bit uint32, set bool) uint32 {
	if set {
		return word | bit
	}
	return word &^ bit
}

func setLPIPending(word uint32, v bool) uint32 { return setBit(word, ist.PendingBit, v) }
func setLPIActive(word uint32, v bool) uint32  { return setBit(word, lpiActiveBit, v) }
func setLPIEnabled(word uint32, v bool) uint32 { return setBit(word, lpiEnableBit, v) }

func setLPIHandling(word uint32, mode HandlingMode) uint32 {
	return setBit(word, lpiHMBit, mode == HandlingLevel)
}

func setLPIPriority(word uint32, prio uint8) uint32 {
	return (word &^ lpiPriorityMask) | (uint32(prio)<<lpiPriorityShift)&lpiPriorityMask
}

func setLPIIAFFID(word uint32, iaffid uint32) uint32 {
	return (word &^ lpiIAFFIDMask) | (iaffid<<lpiIAFFIDShift)&lpiIAFFIDMask
}
