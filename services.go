package flexcan

// Peripheral clock source selection for a CAN controller.
type ClockSource uint8

const (
	ClockSrcSOSCDIV2 ClockSource = 0 // system oscillator divided by 2
	ClockSrcFIRCDIV2 ClockSource = 1 // fast IRC divided by 2
	ClockSrcBusClock ClockSource = 2 // bus clock
)

// ClockService yields the frequency of a peripheral clock source in Hz.
// A return value of 0 means the source is not configured.
type ClockService interface {
	PeripheralClock(source ClockSource) uint32
}

// InterruptController routes controller interrupt lines, identified by
// their numeric vector id, to handlers.
type InterruptController interface {
	EnableInterrupt(irq int)
	DisableInterrupt(irq int)
	SetPriority(irq int, priority uint8)
}
