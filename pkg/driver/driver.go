// Package driver implements the FlexCAN message buffer driver core :
// controller initialization and freeze mode state machine, bit timing,
// mailbox transmit/receive paths and the interrupt dispatcher. All
// hardware access goes through the flexcan.RegisterBank interface, so the
// driver runs unchanged against the emulated peripheral or a mock bank.
package driver

import (
	flexcan "github.com/flexcan-go/flexcan"
	log "github.com/sirupsen/logrus"
)

// Number of CAN controllers on the S32K144
const InstanceCount uint8 = 3

// Bounded iteration count for freeze/reset acknowledge polling. These are
// iteration bounds rather than wall clock deadlines : no timer service is
// assumed at this layer.
const freezeTimeout = 10000

// Controller operating mode
type Mode uint8

const (
	ModeNormal     Mode = 0
	ModeLoopback   Mode = 1 // transmissions internally routed back to the receiver
	ModeListenOnly Mode = 2 // bus monitoring, no ACK, no transmission
)

// Config describes one controller initialization.
type Config struct {
	Instance            uint8
	ClockSource         flexcan.ClockSource
	BaudRate            uint32
	Mode                Mode
	EnableSelfReception bool
	UseRxFifo           bool
}

// Per instance state. Fixed size table, no dynamic allocation : one slot
// per physical controller.
type instance struct {
	regs        flexcan.RegisterBank
	initialized bool
	sink        EventSink
}

// Driver owns the registry of controller instances.
type Driver struct {
	clocks    flexcan.ClockService
	clock     Clock
	instances [InstanceCount]instance
}

// New creates a driver using the given clock service for peripheral clock
// frequency queries.
func New(clocks flexcan.ClockService) *Driver {
	return &Driver{clocks: clocks, clock: systemClock{}}
}

// SetClock overrides the monotonic time source used by the blocking
// operations. Intended for tests.
func (d *Driver) SetClock(clock Clock) {
	if clock != nil {
		d.clock = clock
	}
}

// Attach binds a controller register bank to an instance slot. This stands
// in for the fixed base address table of the hardware.
func (d *Driver) Attach(instanceIdx uint8, regs flexcan.RegisterBank) error {
	if instanceIdx >= InstanceCount || regs == nil {
		return flexcan.ErrInvalidParam
	}
	d.instances[instanceIdx].regs = regs
	return nil
}

// inst validates an instance index and returns its slot.
func (d *Driver) inst(instanceIdx uint8) (*instance, error) {
	if instanceIdx >= InstanceCount {
		return nil, flexcan.ErrInvalidParam
	}
	inst := &d.instances[instanceIdx]
	if inst.regs == nil {
		return nil, flexcan.ErrNotAttached
	}
	return inst, nil
}

// instReady additionally requires a completed Init.
func (d *Driver) instReady(instanceIdx uint8) (*instance, error) {
	inst, err := d.inst(instanceIdx)
	if err != nil {
		return nil, err
	}
	if !inst.initialized {
		return nil, flexcan.ErrNotInitialized
	}
	return inst, nil
}

// Init brings a controller from disabled to operating : clock enable,
// freeze entry, soft reset, bit timing, mode flags, mailbox RAM reset and
// freeze exit. Any failing step aborts and leaves the instance
// uninitialized.
func (d *Driver) Init(config Config) error {
	inst, err := d.inst(config.Instance)
	if err != nil {
		return err
	}
	inst.initialized = false

	// Fail before touching hardware when the clock source yields nothing
	clockHz := d.clocks.PeripheralClock(config.ClockSource)
	if clockHz == 0 {
		return flexcan.ErrInvalidParam
	}
	timing, err := CalculateTiming(clockHz, config.BaudRate)
	if err != nil {
		return err
	}

	regs := inst.regs
	enableClock(regs, config.ClockSource)

	if err := enterFreeze(regs); err != nil {
		return err
	}
	if err := softReset(regs); err != nil {
		return err
	}

	regs.Write(flexcan.RegCTRL1, timing.ctrl1Bits()|clockSourceBit(config.ClockSource))

	// Operating mode
	switch config.Mode {
	case ModeLoopback:
		regs.Write(flexcan.RegCTRL1, regs.Read(flexcan.RegCTRL1)|flexcan.CTRL1_LPB)
	case ModeListenOnly:
		regs.Write(flexcan.RegCTRL1, regs.Read(flexcan.RegCTRL1)|flexcan.CTRL1_LOM)
	}

	mcr := regs.Read(flexcan.RegMCR)
	if !config.EnableSelfReception {
		mcr |= flexcan.MCR_SRXDIS
	} else {
		mcr &^= flexcan.MCR_SRXDIS
	}
	if config.UseRxFifo {
		mcr |= flexcan.MCR_RFEN
	} else {
		mcr &^= flexcan.MCR_RFEN
	}
	mcr = (mcr &^ flexcan.MCR_MAXMB_MASK) | uint32(flexcan.MBCount-1)
	regs.Write(flexcan.RegMCR, mcr)

	initMessageBuffers(regs)

	// Global acceptance mask, individual masks do the real filtering
	regs.Write(flexcan.RegRXMGMASK, flexcan.IDExtMask)

	// Clear error counters
	regs.Write(flexcan.RegECR, 0)

	if err := exitFreeze(regs); err != nil {
		return err
	}

	inst.initialized = true
	log.Infof("[FLEXCAN%d] initialized, %d bps, mode %d, prescaler %d (%d Hz clock)",
		config.Instance, config.BaudRate, config.Mode, timing.PreDiv, clockHz)
	return nil
}

// Deinit disables the controller module. Init must run again before any
// mailbox operation.
func (d *Driver) Deinit(instanceIdx uint8) error {
	inst, err := d.inst(instanceIdx)
	if err != nil {
		return err
	}
	regs := inst.regs
	regs.Write(flexcan.RegMCR, regs.Read(flexcan.RegMCR)|flexcan.MCR_MDIS)
	inst.initialized = false
	log.Infof("[FLEXCAN%d] deinitialized", instanceIdx)
	return nil
}

// RegisterCallback installs the event sink for an instance. At most one
// sink per instance; registering replaces any previous one.
func (d *Driver) RegisterCallback(instanceIdx uint8, sink EventSink) error {
	if instanceIdx >= InstanceCount {
		return flexcan.ErrInvalidParam
	}
	d.instances[instanceIdx].sink = sink
	return nil
}

// UnregisterCallback removes the event sink for an instance.
func (d *Driver) UnregisterCallback(instanceIdx uint8) error {
	if instanceIdx >= InstanceCount {
		return flexcan.ErrInvalidParam
	}
	d.instances[instanceIdx].sink = nil
	return nil
}

// GetErrorState returns the fault confinement state derived from the
// controller's FLTCONF field : error active, error passive or bus off.
type ErrorState uint8

const (
	ErrorActive  ErrorState = 0 // TEC and REC below 96
	ErrorPassive ErrorState = 1 // TEC or REC at or above 128
	ErrorBusOff  ErrorState = 2 // TEC above 255
)

func (d *Driver) GetErrorState(instanceIdx uint8) (ErrorState, error) {
	inst, err := d.inst(instanceIdx)
	if err != nil {
		return ErrorActive, err
	}
	fltConf := (inst.regs.Read(flexcan.RegESR1) & flexcan.ESR1_FLTCONF_MASK) >> flexcan.ESR1_FLTCONF_SHIFT
	switch fltConf {
	case 0:
		return ErrorActive, nil
	case 1:
		return ErrorPassive, nil
	default:
		return ErrorBusOff, nil
	}
}

// GetErrorCounters returns the transmit and receive error counters.
func (d *Driver) GetErrorCounters(instanceIdx uint8) (txCount uint8, rxCount uint8, err error) {
	inst, err := d.inst(instanceIdx)
	if err != nil {
		return 0, 0, err
	}
	ecr := inst.regs.Read(flexcan.RegECR)
	return uint8(ecr >> 8), uint8(ecr), nil
}

// enableClock disables the module, selects the clock source in CTRL1 and
// re-enables it. Clock source selection is only legal with MDIS set.
func enableClock(regs flexcan.RegisterBank, source flexcan.ClockSource) {
	regs.Write(flexcan.RegMCR, regs.Read(flexcan.RegMCR)|flexcan.MCR_MDIS)

	ctrl1 := regs.Read(flexcan.RegCTRL1)
	if source == flexcan.ClockSrcSOSCDIV2 {
		ctrl1 &^= flexcan.CTRL1_CLKSRC
	} else {
		ctrl1 |= flexcan.CTRL1_CLKSRC
	}
	regs.Write(flexcan.RegCTRL1, ctrl1)

	regs.Write(flexcan.RegMCR, regs.Read(flexcan.RegMCR)&^flexcan.MCR_MDIS)
}

func clockSourceBit(source flexcan.ClockSource) uint32 {
	if source == flexcan.ClockSrcSOSCDIV2 {
		return 0
	}
	return flexcan.CTRL1_CLKSRC
}

// enterFreeze requests freeze+halt and polls the acknowledge bit.
func enterFreeze(regs flexcan.RegisterBank) error {
	regs.Write(flexcan.RegMCR, regs.Read(flexcan.RegMCR)|flexcan.MCR_FRZ|flexcan.MCR_HALT)

	for i := 0; i < freezeTimeout; i++ {
		if regs.Read(flexcan.RegMCR)&flexcan.MCR_FRZACK != 0 {
			return nil
		}
	}
	return flexcan.ErrTimeout
}

// exitFreeze clears freeze+halt and waits for both the freeze acknowledge
// and the module-not-ready flag to clear, each with its own bound.
func exitFreeze(regs flexcan.RegisterBank) error {
	regs.Write(flexcan.RegMCR, regs.Read(flexcan.RegMCR)&^(flexcan.MCR_FRZ|flexcan.MCR_HALT))

	acked := false
	for i := 0; i < freezeTimeout; i++ {
		if regs.Read(flexcan.RegMCR)&flexcan.MCR_FRZACK == 0 {
			acked = true
			break
		}
	}
	if !acked {
		return flexcan.ErrTimeout
	}
	for i := 0; i < freezeTimeout; i++ {
		if regs.Read(flexcan.RegMCR)&flexcan.MCR_NOTRDY == 0 {
			return nil
		}
	}
	return flexcan.ErrTimeout
}

// softReset requests a soft reset and waits for hardware to clear the bit.
func softReset(regs flexcan.RegisterBank) error {
	regs.Write(flexcan.RegMCR, regs.Read(flexcan.RegMCR)|flexcan.MCR_SOFTRST)

	for i := 0; i < freezeTimeout; i++ {
		if regs.Read(flexcan.RegMCR)&flexcan.MCR_SOFTRST == 0 {
			return nil
		}
	}
	return flexcan.ErrTimeout
}

// initMessageBuffers zeroes all mailbox RAM, arms every individual mask to
// exact match and clears all pending interrupt flags.
func initMessageBuffers(regs flexcan.RegisterBank) {
	for i := uint32(0); i < uint32(flexcan.MBCount)*4; i++ {
		regs.Write(flexcan.RegRAM+i*4, 0)
	}
	for mb := uint8(0); mb < flexcan.MBCount; mb++ {
		regs.Write(flexcan.RXIMROffset(mb), 0xFFFFFFFF)
	}
	// IFLAG1 is W1C
	regs.Write(flexcan.RegIFLAG1, 0xFFFFFFFF)
}
