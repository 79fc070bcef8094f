package flexcan

// RegisterBank is word-level access to one FlexCAN controller's register
// space, byte-offset addressed like the S32K144 memory map. The driver core
// performs every hardware access through this interface; implementations
// are the emulated peripheral (pkg/s32k) and the mock banks used in tests.
//
// Accesses are atomic at word granularity, like a real peripheral bus
// transaction. No other synchronization is provided: the driver relies on
// the mailbox CODE ownership protocol and strict field write ordering.
type RegisterBank interface {
	Read(offset uint32) uint32
	Write(offset uint32, value uint32)
}

// Register offsets (byte offsets from the controller base)
const (
	RegMCR      uint32 = 0x00  // module configuration
	RegCTRL1    uint32 = 0x04  // control 1 : bit timing, mode flags
	RegTIMER    uint32 = 0x08  // free running timer, read unlocks mailboxes
	RegRXMGMASK uint32 = 0x10  // global acceptance mask
	RegECR      uint32 = 0x1C  // error counters
	RegESR1     uint32 = 0x20  // error and status 1
	RegIMASK1   uint32 = 0x28  // mailbox interrupt enables
	RegIFLAG1   uint32 = 0x30  // mailbox interrupt flags, W1C
	RegCTRL2    uint32 = 0x34  // control 2
	RegRAM      uint32 = 0x80  // mailbox RAM, 32 mailboxes x 4 words
	RegRXIMR    uint32 = 0x880 // individual acceptance masks, one per mailbox
)

// MCR bits
const (
	MCR_MDIS    uint32 = 1 << 31 // module disable
	MCR_FRZ     uint32 = 1 << 30 // freeze enable
	MCR_RFEN    uint32 = 1 << 29 // RX FIFO enable
	MCR_HALT    uint32 = 1 << 28 // halt request
	MCR_NOTRDY  uint32 = 1 << 27 // module not ready (read only)
	MCR_SOFTRST uint32 = 1 << 25 // soft reset, self clearing
	MCR_FRZACK  uint32 = 1 << 24 // freeze acknowledge (read only)
	MCR_SRXDIS  uint32 = 1 << 17 // self reception disable

	MCR_MAXMB_MASK uint32 = 0x7F
)

// CTRL1 fields
const (
	CTRL1_PRESDIV_SHIFT = 24
	CTRL1_RJW_SHIFT     = 22
	CTRL1_PSEG1_SHIFT   = 19
	CTRL1_PSEG2_SHIFT   = 16
	CTRL1_PROPSEG_SHIFT = 0

	CTRL1_CLKSRC uint32 = 1 << 13 // clock source select
	CTRL1_LPB    uint32 = 1 << 12 // loopback mode
	CTRL1_SMP    uint32 = 1 << 7  // triple sampling
	CTRL1_LOM    uint32 = 1 << 3  // listen only mode
)

// ESR1 fields
const (
	ESR1_FLTCONF_SHIFT        = 4
	ESR1_FLTCONF_MASK  uint32 = 0x30
)

// Mailbox CS word fields. The CODE sub-field is the hardware/software
// ownership flag of a mailbox.
const (
	CS_CODE_SHIFT        = 24
	CS_CODE_MASK  uint32 = 0x0F000000
	CS_SRR        uint32 = 1 << 22 // substitute remote request
	CS_IDE        uint32 = 1 << 21 // extended identifier
	CS_RTR        uint32 = 1 << 20 // remote transmission request
	CS_DLC_SHIFT         = 16
	CS_DLC_MASK   uint32 = 0x000F0000
	CS_TIME_MASK  uint32 = 0x0000FFFF
)

// Mailbox CODE values
const (
	CodeRxInactive uint32 = 0x0 // mailbox not active
	CodeRxBusy     uint32 = 0x1 // mailbox busy receiving
	CodeRxFull     uint32 = 0x2 // mailbox holds an unread frame
	CodeRxEmpty    uint32 = 0x4 // mailbox armed for reception
	CodeRxOverrun  uint32 = 0x6 // frame overwritten before read
	CodeTxInactive uint32 = 0x8 // mailbox idle, transmission done
	CodeTxAbort    uint32 = 0x9 // abort requested
	CodeTxData     uint32 = 0xC // transmit data frame (RTR=0) or remote (RTR=1)
	CodeTxTanswer  uint32 = 0xE // transmit answer to remote request
)

// ID word fields
const (
	IDStdShift        = 18
	IDStdMask  uint32 = 0x1FFC0000
	IDExtShift        = 0
	IDExtMask  uint32 = 0x1FFFFFFF
)

// Mailbox partitioning. Mailboxes 0-7 are reserved (or RX FIFO when
// enabled), 8-15 are transmit, 16-31 are receive.
const (
	MBCount   uint8 = 32
	TxMBStart uint8 = 8
	TxMBCount uint8 = 8
	RxMBStart uint8 = 16
	RxMBCount uint8 = 16
)

// MBOffset returns the byte offset of a mailbox's CS word inside the
// register space. Each mailbox occupies 4 words : CS, ID, DATA0, DATA1.
func MBOffset(mbIndex uint8) uint32 {
	return RegRAM + uint32(mbIndex)*16
}

// RXIMROffset returns the byte offset of a mailbox's individual mask.
func RXIMROffset(mbIndex uint8) uint32 {
	return RegRXIMR + uint32(mbIndex)*4
}
