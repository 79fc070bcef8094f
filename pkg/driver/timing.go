package driver

import (
	flexcan "github.com/flexcan-go/flexcan"
)

// Bit timing configuration for one controller.
//
// A CAN bit is 1 (sync) + PropSeg + PhaseSeg1 + PhaseSeg2 time quanta, with
// Tq = (PreDiv+1) / clock. Each segment field holds the length minus one,
// so the fixed 6/3/3 split below gives 16 quanta per bit with the sample
// point at 75%.
type TimingConfig struct {
	PropSeg    uint8 // propagation segment, in Tq
	PhaseSeg1  uint8 // phase segment 1, before the sample point
	PhaseSeg2  uint8 // phase segment 2, after the sample point
	RJumpWidth uint8 // resynchronization jump width
	PreDiv     uint8 // prescaler division factor
}

// CalculateTiming derives a timing configuration for the target bit rate.
// 16 quanta per bit are tried first for the best resolution, falling back
// to 8 when the prescaler would overflow its 8 bit range.
func CalculateTiming(clockHz uint32, baudRate uint32) (TimingConfig, error) {
	if clockHz == 0 || baudRate == 0 {
		return TimingConfig{}, flexcan.ErrInvalidParam
	}

	numTq := uint32(16)
	preDiv := clockHz/(baudRate*numTq) - 1

	if preDiv > 255 {
		// Reduced resolution fallback
		numTq = 8
		preDiv = clockHz/(baudRate*numTq) - 1
		if preDiv > 255 {
			return TimingConfig{}, flexcan.ErrInvalidParam
		}
	}

	return TimingConfig{
		PreDiv:     uint8(preDiv),
		PropSeg:    6,
		PhaseSeg1:  3,
		PhaseSeg2:  3,
		RJumpWidth: 3,
	}, nil
}

// ctrl1Bits packs the timing fields into their CTRL1 positions.
func (t TimingConfig) ctrl1Bits() uint32 {
	return uint32(t.PreDiv)<<flexcan.CTRL1_PRESDIV_SHIFT |
		uint32(t.RJumpWidth)<<flexcan.CTRL1_RJW_SHIFT |
		uint32(t.PhaseSeg1)<<flexcan.CTRL1_PSEG1_SHIFT |
		uint32(t.PhaseSeg2)<<flexcan.CTRL1_PSEG2_SHIFT |
		uint32(t.PropSeg)<<flexcan.CTRL1_PROPSEG_SHIFT |
		flexcan.CTRL1_SMP
}
