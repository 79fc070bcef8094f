// Package s32k emulates the S32K144 pieces the CAN stack touches : the
// FlexCAN peripheral register map and behavior, the NVIC and the
// peripheral clock tree. The FlexCAN model implements
// flexcan.RegisterBank, so the driver core runs against it exactly as it
// would against memory mapped hardware.
package s32k

import (
	flexcan "github.com/flexcan-go/flexcan"
)

// Clocks models the peripheral clock tree after boot clock setup : SOSC
// at 8 MHz with DIV2, FIRC at 48 MHz with DIV2 and a 40 MHz bus clock.
type Clocks struct {
	SOSCDIV2 uint32
	FIRCDIV2 uint32
	BusClock uint32
}

func DefaultClocks() *Clocks {
	return &Clocks{
		SOSCDIV2: 4_000_000,
		FIRCDIV2: 24_000_000,
		BusClock: 40_000_000,
	}
}

// PeripheralClock implements flexcan.ClockService. Unknown sources report
// 0, meaning unconfigured.
func (c *Clocks) PeripheralClock(source flexcan.ClockSource) uint32 {
	switch source {
	case flexcan.ClockSrcSOSCDIV2:
		return c.SOSCDIV2
	case flexcan.ClockSrcFIRCDIV2:
		return c.FIRCDIV2
	case flexcan.ClockSrcBusClock:
		return c.BusClock
	default:
		return 0
	}
}
