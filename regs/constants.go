package regs

// Config-frame register offsets, relative to the IRS's MMIO base.
const (
	IRS_IDR0 uint64 = 0x0000
	IRS_IDR1 uint64 = 0x0004
	IRS_IDR2 uint64 = 0x0008
	IRS_IDR3 uint64 = 0x000C
	IRS_IDR4 uint64 = 0x0010
	IRS_IDR5 uint64 = 0x0014
	IRS_IDR6 uint64 = 0x0018
	IRS_IDR7 uint64 = 0x001C

	IRS_IIDR uint64 = 0x0040
	IRS_AIDR uint64 = 0x0044

	IRS_CR0 uint64 = 0x0080
	IRS_CR1 uint64 = 0x0084

	IRS_SYNCR        uint64 = 0x00C0
	IRS_SYNC_STATUSR uint64 = 0x00C4

	IRS_SPI_SELR      uint64 = 0x0108
	IRS_SPI_DOMAINR   uint64 = 0x010C
	IRS_SPI_RESAMPLER uint64 = 0x0110
	IRS_SPI_CFGR      uint64 = 0x0114
	IRS_SPI_STATUSR   uint64 = 0x0118

	IRS_PE_SELR    uint64 = 0x0140
	IRS_PE_STATUSR uint64 = 0x0144

	IRS_IST_BASER   uint64 = 0x0180 // 64-bit
	IRS_IST_CFGR    uint64 = 0x0190
	IRS_IST_STATUSR uint64 = 0x0194

	IRS_MAP_L2_ISTR uint64 = 0x01C0

	// CoreSight identification block, at the top of the 64KB config frame.
	IRS_DEVARCH     uint64 = 0xFFBC
	IRS_IDREGS_BASE uint64 = 0xFFD0
	IRS_IDREGS_END  uint64 = 0xFFFC
)

// IRS_CR0 bit fields.
const (
	CR0_IRSEN uint32 = 1 << 0
)

// IRS_IDR0 bit fields.
const (
	IDR0_REALM uint32 = 1 << 0 // Realm domain implemented
)

// IRS_IST_BASER bit fields. VALID lives in bit 0 of the 64-bit register;
// the rest of the 64-bit value is the L1 (or flat L2) table's guest
// physical base address.
const (
	ISTBASER_VALID uint64 = 1 << 0
	ISTBASER_ADDR_MASK uint64 = ^uint64(0) &^ ISTBASER_VALID
)

// IRS_IST_CFGR bit fields: bit 0 selects one-level (0) vs two-level (1);
// bits [7:4] carry the L2Size log2 when two-level is selected. Writes to
// this register are WI while IRS_IST_BASER.VALID is set — see File.Write32.
const (
	ISTCFGR_TWOLVL     uint32 = 1 << 0
	ISTCFGR_L2SZ_SHIFT        = 4
	ISTCFGR_L2SZ_MASK         = 0xf << ISTCFGR_L2SZ_SHIFT
)

// MinL2Size is the smallest L2 page size (in ISTEs) a two-level IST may be
// configured with; IRS_IST_BASER's VALID 0->1 transition sanitizes any
// smaller/zero configured value up to this floor before freezing it.
const MinL2Size uint32 = 64

// IRS_SPI_CFGR bit fields.
const (
	SPICFGR_ENABLE     uint32 = 1 << 0
	SPICFGR_EDGE       uint32 = 1 << 1
	SPICFGR_PRIO_SHIFT        = 8
	SPICFGR_PRIO_MASK         = 0x1f << SPICFGR_PRIO_SHIFT
)

// IRS_SPI_STATUSR bit fields.
const (
	SPISTATUSR_V uint32 = 1 << 0 // the selected SPI is implemented/reachable
)

// DevArchGICv5 is the CoreSight DEVARCH value this emulation reports,
// identifying the config frame as a GICv5 IRS.
const DevArchGICv5 uint32 = 0x47700A05

// IIDRValue and AIDRValue are fixed implementer/architecture identification
// values, analogous to devices/ne2000.go's hard-coded vendor ID bytes.
const (
	IIDRValue uint32 = 0x0000043B // implementer 0x43b, variant/revision 0
	AIDRValue uint32 = 0x00000500 // architecture version 5.0
)

// idRegs is the CoreSight identification block backing IRS_IDREGS_BASE..
// IRS_IDREGS_END: 8 peripheral-ID words (unimplemented fields, RAZ) followed
// by the 4 standard CoreSight component-ID magic bytes.
var idRegs = [12]uint32{
	0, 0, 0, 0, 0, 0, 0, 0,
	0x0D, 0xF0, 0x05, 0xB1,
}
