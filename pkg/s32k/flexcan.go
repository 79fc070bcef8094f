package s32k

import (
	"sync"

	flexcan "github.com/flexcan-go/flexcan"
	log "github.com/sirupsen/logrus"
)

const (
	mbWords  = 4
	ramWords = 32 * mbWords
)

// FlexCAN is a behavioral model of one FlexCAN controller. It implements
// flexcan.RegisterBank for the driver side and flexcan.FrameListener for
// the bus side, so a controller can be attached to any Bus backend
// (virtualcan, socketcan, slcan) and exchange frames with real peers.
//
// The internal mutex stands in for the atomicity of a peripheral bus
// transaction. Interrupt lines are asserted only after the mutex is
// released : the service routine re-enters the model through Read/Write.
type FlexCAN struct {
	mu       sync.Mutex
	instance uint8

	mcr      uint32
	ctrl1    uint32
	ctrl2    uint32
	timer    uint32
	rxmgmask uint32
	ecr      uint32
	esr1     uint32
	imask1   uint32
	iflag1   uint32
	ram      [ramWords]uint32
	rximr    [32]uint32

	// Mailbox locked by a CS read of a full mailbox, -1 when none.
	// Deliveries aimed at the locked mailbox are dropped.
	lockedMB int

	bus  flexcan.Bus
	nvic *NVIC
}

// NewFlexCAN creates a controller in its power-on state : module disabled,
// freeze requested.
func NewFlexCAN(instance uint8) *FlexCAN {
	return &FlexCAN{
		instance: instance,
		lockedMB: -1,
		mcr:      flexcan.MCR_MDIS | flexcan.MCR_FRZ | flexcan.MCR_HALT | flexcan.MCR_NOTRDY,
		rxmgmask: 0xFFFFFFFF,
	}
}

// ConnectBus attaches the controller's TX/RX pins to a CAN bus backend.
func (f *FlexCAN) ConnectBus(bus flexcan.Bus) error {
	f.mu.Lock()
	f.bus = bus
	f.mu.Unlock()
	return bus.Subscribe(f)
}

// ConnectNVIC routes the controller's interrupt lines to an NVIC.
func (f *FlexCAN) ConnectNVIC(nvic *NVIC) {
	f.mu.Lock()
	f.nvic = nvic
	f.mu.Unlock()
}

// Read implements flexcan.RegisterBank.
func (f *FlexCAN) Read(offset uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case offset == flexcan.RegMCR:
		return f.mcr
	case offset == flexcan.RegCTRL1:
		return f.ctrl1
	case offset == flexcan.RegTIMER:
		// Reading the timer releases any mailbox lock
		f.timer++
		f.lockedMB = -1
		return f.timer
	case offset == flexcan.RegRXMGMASK:
		return f.rxmgmask
	case offset == flexcan.RegECR:
		return f.ecr
	case offset == flexcan.RegESR1:
		return f.esr1
	case offset == flexcan.RegIMASK1:
		return f.imask1
	case offset == flexcan.RegIFLAG1:
		return f.iflag1
	case offset == flexcan.RegCTRL2:
		return f.ctrl2
	case offset >= flexcan.RegRAM && offset < flexcan.RegRAM+ramWords*4:
		word := (offset - flexcan.RegRAM) / 4
		value := f.ram[word]
		if word%mbWords == 0 {
			code := (value & flexcan.CS_CODE_MASK) >> flexcan.CS_CODE_SHIFT
			if code == flexcan.CodeRxFull || code == flexcan.CodeRxOverrun {
				f.lockedMB = int(word / mbWords)
			}
		}
		return value
	case offset >= flexcan.RegRXIMR && offset < flexcan.RegRXIMR+32*4:
		return f.rximr[(offset-flexcan.RegRXIMR)/4]
	}
	return 0
}

// Write implements flexcan.RegisterBank. Transmissions triggered by a CS
// write complete immediately : there is no bit-level arbitration to model,
// the attached bus backend carries whole frames.
func (f *FlexCAN) Write(offset uint32, value uint32) {
	f.mu.Lock()

	var txFrame *flexcan.Frame
	var loopFrame *flexcan.Frame

	switch {
	case offset == flexcan.RegMCR:
		f.writeMCR(value)
	case offset == flexcan.RegCTRL1:
		f.ctrl1 = value
	case offset == flexcan.RegTIMER:
		f.timer = value
	case offset == flexcan.RegRXMGMASK:
		f.rxmgmask = value
	case offset == flexcan.RegECR:
		f.ecr = value
	case offset == flexcan.RegESR1:
		// W1C
		f.esr1 &^= value
	case offset == flexcan.RegIMASK1:
		f.imask1 = value
	case offset == flexcan.RegIFLAG1:
		// W1C
		f.iflag1 &^= value
	case offset == flexcan.RegCTRL2:
		f.ctrl2 = value
	case offset >= flexcan.RegRAM && offset < flexcan.RegRAM+ramWords*4:
		word := (offset - flexcan.RegRAM) / 4
		f.ram[word] = value
		if word%mbWords == 0 {
			txFrame, loopFrame = f.csWritten(uint8(word/mbWords), value)
		}
	case offset >= flexcan.RegRXIMR && offset < flexcan.RegRXIMR+32*4:
		f.rximr[(offset-flexcan.RegRXIMR)/4] = value
	}

	bus := f.bus
	f.mu.Unlock()

	if loopFrame != nil {
		f.deliver(*loopFrame)
	}
	if txFrame != nil && bus != nil {
		if err := bus.Send(*txFrame); err != nil {
			log.Errorf("[S32K][CAN%d] bus send failed : %v", f.instance, err)
		}
	}
	f.raisePending()
}

// Handle implements flexcan.FrameListener, the bus RX path.
func (f *FlexCAN) Handle(frame flexcan.Frame) {
	f.deliver(frame)
	f.raisePending()
}

// writeMCR applies an MCR write, recomputing the read-only status bits.
// Caller holds the mutex.
func (f *FlexCAN) writeMCR(value uint32) {
	if value&flexcan.MCR_SOFTRST != 0 {
		f.softReset()
	}
	mcr := value &^ (flexcan.MCR_SOFTRST | flexcan.MCR_NOTRDY | flexcan.MCR_FRZACK)
	switch {
	case mcr&flexcan.MCR_MDIS != 0:
		mcr |= flexcan.MCR_NOTRDY
	case mcr&flexcan.MCR_FRZ != 0 && mcr&flexcan.MCR_HALT != 0:
		mcr |= flexcan.MCR_NOTRDY | flexcan.MCR_FRZACK
	}
	f.mcr = mcr
}

// softReset clears the interrupt and error state. Mailbox RAM and bit
// timing survive, as on hardware.
func (f *FlexCAN) softReset() {
	f.timer = 0
	f.ecr = 0
	f.esr1 = 0
	f.imask1 = 0
	f.iflag1 = 0
	f.rxmgmask = 0xFFFFFFFF
	f.lockedMB = -1
}

// running reports whether the controller is enabled and out of freeze.
// Caller holds the mutex.
func (f *FlexCAN) running() bool {
	return f.mcr&(flexcan.MCR_MDIS|flexcan.MCR_FRZACK) == 0
}

// csWritten reacts to a CS word write : TX codes start a transmission,
// the abort code settles straight to inactive. Returns the frame to put
// on the bus and the frame to route back internally, if any. Caller holds
// the mutex.
func (f *FlexCAN) csWritten(mbIndex uint8, cs uint32) (txFrame *flexcan.Frame, loopFrame *flexcan.Frame) {
	code := (cs & flexcan.CS_CODE_MASK) >> flexcan.CS_CODE_SHIFT
	word := uint32(mbIndex) * mbWords

	switch code {
	case flexcan.CodeTxData, flexcan.CodeTxTanswer:
		if !f.running() || f.ctrl1&flexcan.CTRL1_LOM != 0 {
			// Disabled, frozen or listen only : the frame never goes out
			return nil, nil
		}
		frame := f.frameFromMailbox(mbIndex)
		f.timer++
		f.ram[word] = (cs &^ (flexcan.CS_CODE_MASK | flexcan.CS_TIME_MASK)) |
			flexcan.CodeTxInactive<<flexcan.CS_CODE_SHIFT |
			f.timer&flexcan.CS_TIME_MASK
		f.iflag1 |= uint32(1) << mbIndex

		if f.mcr&flexcan.MCR_SRXDIS == 0 {
			loopFrame = &frame
		}
		if f.ctrl1&flexcan.CTRL1_LPB == 0 {
			txFrame = &frame
		}
		return txFrame, loopFrame

	case flexcan.CodeTxAbort:
		f.ram[word] = (cs &^ flexcan.CS_CODE_MASK) | flexcan.CodeTxInactive<<flexcan.CS_CODE_SHIFT
	}
	return nil, nil
}

// frameFromMailbox builds the wire frame out of a mailbox's words. Caller
// holds the mutex.
func (f *FlexCAN) frameFromMailbox(mbIndex uint8) flexcan.Frame {
	word := uint32(mbIndex) * mbWords
	cs := f.ram[word]
	idWord := f.ram[word+1]

	var frame flexcan.Frame
	if cs&flexcan.CS_IDE != 0 {
		frame.ID = idWord & flexcan.IDExtMask
		frame.Flags |= flexcan.FrameFlagExtended
	} else {
		frame.ID = (idWord & flexcan.IDStdMask) >> flexcan.IDStdShift
	}
	if cs&flexcan.CS_RTR != 0 {
		frame.Flags |= flexcan.FrameFlagRemote
	}
	dlc := uint8((cs & flexcan.CS_DLC_MASK) >> flexcan.CS_DLC_SHIFT)
	if dlc > 8 {
		dlc = 8
	}
	frame.DLC = dlc

	word0 := f.ram[word+2]
	word1 := f.ram[word+3]
	frame.Data[0] = byte(word0 >> 24)
	frame.Data[1] = byte(word0 >> 16)
	frame.Data[2] = byte(word0 >> 8)
	frame.Data[3] = byte(word0)
	frame.Data[4] = byte(word1 >> 24)
	frame.Data[5] = byte(word1 >> 16)
	frame.Data[6] = byte(word1 >> 8)
	frame.Data[7] = byte(word1)
	return frame
}

// deliver runs the RX matching pipeline for an incoming frame : the
// lowest-index armed mailbox whose identifier matches under its
// individual mask wins. A frame for a locked or unmatched mailbox is
// dropped, a frame for an unread full mailbox overruns it.
func (f *FlexCAN) deliver(frame flexcan.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running() {
		return
	}

	extended := frame.Flags&flexcan.FrameFlagExtended != 0
	var idWord uint32
	if extended {
		idWord = frame.ID & flexcan.IDExtMask
	} else {
		idWord = (frame.ID << flexcan.IDStdShift) & flexcan.IDStdMask
	}

	// Acceptance masks apply to the plain identifier value, so mailbox ID
	// words are decoded back before comparing
	matched := -1
	for mb := 0; mb < 32; mb++ {
		cs := f.ram[mb*mbWords]
		code := (cs & flexcan.CS_CODE_MASK) >> flexcan.CS_CODE_SHIFT
		if code != flexcan.CodeRxEmpty && code != flexcan.CodeRxFull && code != flexcan.CodeRxOverrun {
			continue
		}
		if (cs&flexcan.CS_IDE != 0) != extended {
			continue
		}
		mbID := (f.ram[mb*mbWords+1] & flexcan.IDStdMask) >> flexcan.IDStdShift
		if extended {
			mbID = f.ram[mb*mbWords+1] & flexcan.IDExtMask
		}
		if (mbID^frame.ID)&f.rximr[mb] != 0 {
			continue
		}
		matched = mb
		break
	}
	if matched < 0 {
		return
	}
	if matched == f.lockedMB {
		log.Debugf("[S32K][CAN%d] frame 0x%X dropped, mailbox %d locked", f.instance, frame.ID, matched)
		return
	}

	word := uint32(matched) * mbWords
	prevCode := (f.ram[word] & flexcan.CS_CODE_MASK) >> flexcan.CS_CODE_SHIFT
	code := flexcan.CodeRxFull
	if prevCode == flexcan.CodeRxFull || prevCode == flexcan.CodeRxOverrun {
		code = flexcan.CodeRxOverrun
	}

	f.timer++
	cs := code<<flexcan.CS_CODE_SHIFT |
		uint32(frame.DLC)<<flexcan.CS_DLC_SHIFT |
		f.timer&flexcan.CS_TIME_MASK
	if extended {
		cs |= flexcan.CS_IDE | flexcan.CS_SRR
	}
	if frame.Flags&flexcan.FrameFlagRemote != 0 {
		cs |= flexcan.CS_RTR
	}

	f.ram[word] = cs
	f.ram[word+1] = idWord
	f.ram[word+2] = uint32(frame.Data[0])<<24 | uint32(frame.Data[1])<<16 |
		uint32(frame.Data[2])<<8 | uint32(frame.Data[3])
	f.ram[word+3] = uint32(frame.Data[4])<<24 | uint32(frame.Data[5])<<16 |
		uint32(frame.Data[6])<<8 | uint32(frame.Data[7])
	f.iflag1 |= uint32(1) << matched
}

// raisePending asserts the interrupt lines that have enabled pending
// flags. Runs without the model mutex so service routines can re-enter.
func (f *FlexCAN) raisePending() {
	f.mu.Lock()
	pending := f.iflag1 & f.imask1
	nvic := f.nvic
	instance := f.instance
	f.mu.Unlock()

	if nvic == nil {
		return
	}
	lowIRQ := MailboxIRQ(instance, 0)
	highIRQ := MailboxIRQ(instance, 16)
	if pending&0x0000FFFF != 0 || (pending != 0 && highIRQ == lowIRQ) {
		nvic.Assert(lowIRQ)
	}
	if pending&0xFFFF0000 != 0 && highIRQ != lowIRQ {
		nvic.Assert(highIRQ)
	}
}
