package driver

import (
	"runtime"
	"time"

	flexcan "github.com/flexcan-go/flexcan"
)

// RxFilter describes the acceptance filter of one RX mailbox. A mask bit
// of 1 means the identifier bit must match, 0 means don't care :
// (receivedID & mask) == (filterID & mask).
type RxFilter struct {
	ID     uint32
	Mask   uint32
	IDType flexcan.IDType
}

// Receive reads a pending frame out of an RX mailbox. Returns ErrNoData
// when the mailbox pending flag is clear; that is the empty case, not a
// fault.
//
// Read ordering is mandatory : the CS read locks the mailbox against
// hardware overwrite, then ID and data are read, then the free running
// timer is read (the read itself releases the lock, the value is
// discarded) and finally the pending flag is cleared.
func (d *Driver) Receive(instanceIdx uint8, mbIndex uint8) (*flexcan.Message, error) {
	inst, err := d.instReady(instanceIdx)
	if err != nil {
		return nil, err
	}
	if mbIndex < flexcan.RxMBStart || mbIndex >= flexcan.MBCount {
		return nil, flexcan.ErrInvalidParam
	}

	regs := inst.regs
	mbMask := uint32(1) << mbIndex

	if regs.Read(flexcan.RegIFLAG1)&mbMask == 0 {
		return nil, flexcan.ErrNoData
	}

	// Locks the mailbox
	cs := readMbCS(regs, mbIndex)
	idWord := readMbID(regs, mbIndex)

	var message flexcan.Message
	message.ID, message.IDType = decodeID(cs, idWord)
	if cs&flexcan.CS_RTR != 0 {
		message.FrameType = flexcan.FrameRemote
	}
	message.DataLength = uint8((cs & flexcan.CS_DLC_MASK) >> flexcan.CS_DLC_SHIFT)
	message.Data = readMbData(regs, mbIndex)

	// Unlock protocol : the timer read releases the hardware lock
	_ = regs.Read(flexcan.RegTIMER)
	regs.Write(flexcan.RegIFLAG1, mbMask)

	return &message, nil
}

// ReceiveBlocking spins on the mailbox pending flag until a frame arrives
// or the timeout elapses, then delegates to Receive.
func (d *Driver) ReceiveBlocking(instanceIdx uint8, mbIndex uint8, timeoutMs uint32) (*flexcan.Message, error) {
	inst, err := d.instReady(instanceIdx)
	if err != nil {
		return nil, err
	}
	if mbIndex < flexcan.RxMBStart || mbIndex >= flexcan.MBCount {
		return nil, flexcan.ErrInvalidParam
	}

	regs := inst.regs
	mbMask := uint32(1) << mbIndex
	deadline := d.clock.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	for {
		if regs.Read(flexcan.RegIFLAG1)&mbMask != 0 {
			return d.Receive(instanceIdx, mbIndex)
		}
		if !d.clock.Now().Before(deadline) {
			return nil, flexcan.ErrTimeout
		}
		runtime.Gosched()
	}
}

// ConfigRxFilter arms an RX mailbox : identifier, RX empty code,
// individual acceptance mask and interrupt enable.
func (d *Driver) ConfigRxFilter(instanceIdx uint8, mbIndex uint8, filter RxFilter) error {
	inst, err := d.instReady(instanceIdx)
	if err != nil {
		return err
	}
	if mbIndex < flexcan.RxMBStart || mbIndex >= flexcan.MBCount {
		return flexcan.ErrInvalidParam
	}

	regs := inst.regs
	writeMbID(regs, mbIndex, encodeID(filter.ID, filter.IDType))

	cs := flexcan.CodeRxEmpty << flexcan.CS_CODE_SHIFT
	if filter.IDType == flexcan.IDExtended {
		cs |= flexcan.CS_IDE
	}
	writeMbCS(regs, mbIndex, cs)

	regs.Write(flexcan.RXIMROffset(mbIndex), filter.Mask)
	regs.Write(flexcan.RegIMASK1, regs.Read(flexcan.RegIMASK1)|uint32(1)<<mbIndex)
	return nil
}

// SetupRxMailbox configures an RX mailbox filter under freeze mode, for
// use on a live controller.
func (d *Driver) SetupRxMailbox(instanceIdx uint8, mbIndex uint8, id uint32, idType flexcan.IDType, mask uint32) error {
	inst, err := d.instReady(instanceIdx)
	if err != nil {
		return err
	}
	if mbIndex < flexcan.RxMBStart || mbIndex >= flexcan.MBCount {
		return flexcan.ErrInvalidParam
	}
	if err := enterFreeze(inst.regs); err != nil {
		return err
	}
	configErr := d.ConfigRxFilter(instanceIdx, mbIndex, RxFilter{ID: id, Mask: mask, IDType: idType})
	if err := exitFreeze(inst.regs); err != nil {
		return err
	}
	return configErr
}
