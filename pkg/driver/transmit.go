package driver

import (
	"runtime"
	"time"

	flexcan "github.com/flexcan-go/flexcan"
)

// Send queues a message for transmission on a TX mailbox and returns once
// armed, without waiting for completion.
//
// Write ordering is a correctness requirement : data words and ID word are
// written first, the CS word last. The CS write hands the mailbox to the
// hardware; writing it earlier could transmit an unsettled payload.
func (d *Driver) Send(instanceIdx uint8, mbIndex uint8, message *flexcan.Message) error {
	if message == nil {
		return flexcan.ErrInvalidParam
	}
	inst, err := d.instReady(instanceIdx)
	if err != nil {
		return err
	}
	if mbIndex < flexcan.TxMBStart || mbIndex >= flexcan.TxMBStart+flexcan.TxMBCount {
		return flexcan.ErrInvalidParam
	}
	if message.DataLength > flexcan.MaxDataLength {
		return flexcan.ErrInvalidParam
	}

	regs := inst.regs

	// Clear a stale pending flag from a previous transmission
	regs.Write(flexcan.RegIFLAG1, uint32(1)<<mbIndex)

	writeMbData(regs, mbIndex, message.Data)
	writeMbID(regs, mbIndex, encodeID(message.ID, message.IDType))

	cs := flexcan.CodeTxData<<flexcan.CS_CODE_SHIFT |
		uint32(message.DataLength)<<flexcan.CS_DLC_SHIFT
	if message.IDType == flexcan.IDExtended {
		cs |= flexcan.CS_IDE | flexcan.CS_SRR
	}
	if message.FrameType == flexcan.FrameRemote {
		cs |= flexcan.CS_RTR
	}

	// Arms the hardware
	writeMbCS(regs, mbIndex, cs)
	return nil
}

// SendBlocking sends and spins on the mailbox pending flag until the
// transmission completes or the timeout elapses. The wait is a busy wait :
// there is no scheduler to yield to on the target this models.
func (d *Driver) SendBlocking(instanceIdx uint8, mbIndex uint8, message *flexcan.Message, timeoutMs uint32) error {
	if err := d.Send(instanceIdx, mbIndex, message); err != nil {
		return err
	}

	regs := d.instances[instanceIdx].regs
	mbMask := uint32(1) << mbIndex
	deadline := d.clock.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	for {
		if regs.Read(flexcan.RegIFLAG1)&mbMask != 0 {
			regs.Write(flexcan.RegIFLAG1, mbMask)
			return nil
		}
		if !d.clock.Now().Before(deadline) {
			return flexcan.ErrTimeout
		}
		runtime.Gosched()
	}
}

// AbortTransmission writes the abort code to a mailbox. Advisory : if the
// frame already went out on the wire the abort has no effect, re-check
// with IsMbBusy.
func (d *Driver) AbortTransmission(instanceIdx uint8, mbIndex uint8) error {
	inst, err := d.inst(instanceIdx)
	if err != nil {
		return err
	}
	if mbIndex >= flexcan.MBCount {
		return flexcan.ErrInvalidParam
	}
	writeMbCS(inst.regs, mbIndex, flexcan.CodeTxAbort<<flexcan.CS_CODE_SHIFT)
	return nil
}

// IsMbBusy reports whether a mailbox is owned by hardware. Inferred from
// the CODE field alone : anything other than an inactive code counts as
// busy.
func (d *Driver) IsMbBusy(instanceIdx uint8, mbIndex uint8) (bool, error) {
	inst, err := d.inst(instanceIdx)
	if err != nil {
		return false, err
	}
	if mbIndex >= flexcan.MBCount {
		return false, flexcan.ErrInvalidParam
	}
	code := (readMbCS(inst.regs, mbIndex) & flexcan.CS_CODE_MASK) >> flexcan.CS_CODE_SHIFT
	return code != flexcan.CodeTxInactive && code != flexcan.CodeRxInactive, nil
}

// ConfigTxMailbox arms a mailbox for transmission : inactive TX code and
// interrupt enable. Idempotent.
func (d *Driver) ConfigTxMailbox(instanceIdx uint8, mbIndex uint8) error {
	inst, err := d.instReady(instanceIdx)
	if err != nil {
		return err
	}
	if mbIndex < flexcan.TxMBStart || mbIndex >= flexcan.TxMBStart+flexcan.TxMBCount {
		return flexcan.ErrInvalidParam
	}

	regs := inst.regs
	writeMbCS(regs, mbIndex, flexcan.CodeTxInactive<<flexcan.CS_CODE_SHIFT)
	regs.Write(flexcan.RegIMASK1, regs.Read(flexcan.RegIMASK1)|uint32(1)<<mbIndex)
	return nil
}

// SetupTxMailbox configures a TX mailbox under freeze mode, for use on a
// live controller.
func (d *Driver) SetupTxMailbox(instanceIdx uint8, mbIndex uint8) error {
	inst, err := d.instReady(instanceIdx)
	if err != nil {
		return err
	}
	if mbIndex < flexcan.TxMBStart || mbIndex >= flexcan.TxMBStart+flexcan.TxMBCount {
		return flexcan.ErrInvalidParam
	}
	if err := enterFreeze(inst.regs); err != nil {
		return err
	}
	configErr := d.ConfigTxMailbox(instanceIdx, mbIndex)
	if err := exitFreeze(inst.regs); err != nil {
		return err
	}
	return configErr
}
