package driver

import (
	flexcan "github.com/flexcan-go/flexcan"
)

// OnInterrupt is the mailbox interrupt service routine. Call it when the
// controller raises its ORed mailbox interrupt line.
//
// One invocation services exactly one mailbox : the lowest-index pending
// one. If several flags are set the hardware keeps the line asserted and
// the remaining mailboxes are handled by subsequent invocations. The
// event sink runs in interrupt context.
func (d *Driver) OnInterrupt(instanceIdx uint8) {
	if instanceIdx >= InstanceCount {
		return
	}
	inst := &d.instances[instanceIdx]
	if inst.regs == nil || inst.sink == nil {
		return
	}
	regs := inst.regs

	flags := regs.Read(flexcan.RegIFLAG1)
	if flags == 0 {
		return
	}

	var mbIndex uint8
	for mbIndex = 0; mbIndex < flexcan.MBCount; mbIndex++ {
		if flags&(uint32(1)<<mbIndex) != 0 {
			break
		}
	}
	mbMask := uint32(1) << mbIndex

	cs := readMbCS(regs, mbIndex)
	code := (cs & flexcan.CS_CODE_MASK) >> flexcan.CS_CODE_SHIFT

	switch code {
	case flexcan.CodeTxInactive:
		regs.Write(flexcan.RegIFLAG1, mbMask)
		inst.sink.OnCanEvent(instanceIdx, Event{Type: EventTxComplete, MBIndex: mbIndex})

	case flexcan.CodeRxFull, flexcan.CodeRxOverrun:
		idWord := readMbID(regs, mbIndex)

		var message flexcan.Message
		message.ID, message.IDType = decodeID(cs, idWord)
		if cs&flexcan.CS_RTR != 0 {
			message.FrameType = flexcan.FrameRemote
		}
		dlc := uint8((cs & flexcan.CS_DLC_MASK) >> flexcan.CS_DLC_SHIFT)
		if dlc > flexcan.MaxDataLength {
			dlc = flexcan.MaxDataLength
		}
		message.DataLength = dlc
		message.Data = readMbData(regs, mbIndex)

		// Unlock, clear and re-arm for the next frame, keeping the
		// identifier format bits
		_ = regs.Read(flexcan.RegTIMER)
		regs.Write(flexcan.RegIFLAG1, mbMask)
		writeMbCS(regs, mbIndex, flexcan.CodeRxEmpty<<flexcan.CS_CODE_SHIFT|cs&(flexcan.CS_IDE|flexcan.CS_RTR))

		inst.sink.OnCanEvent(instanceIdx, Event{Type: EventRxComplete, MBIndex: mbIndex, Message: &message})

	default:
		// Flag with no serviceable mailbox state, drop it so the line
		// does not stay asserted
		regs.Write(flexcan.RegIFLAG1, mbMask)
	}
}

// OnErrorInterrupt services the error/bus-off interrupt line. The raw
// ESR1 snapshot is forwarded in the event's ErrorFlags.
func (d *Driver) OnErrorInterrupt(instanceIdx uint8) {
	if instanceIdx >= InstanceCount {
		return
	}
	inst := &d.instances[instanceIdx]
	if inst.regs == nil || inst.sink == nil {
		return
	}

	esr1 := inst.regs.Read(flexcan.RegESR1)
	fltConf := (esr1 & flexcan.ESR1_FLTCONF_MASK) >> flexcan.ESR1_FLTCONF_SHIFT

	eventType := EventError
	if fltConf > 1 {
		eventType = EventBusOff
	}
	inst.sink.OnCanEvent(instanceIdx, Event{Type: eventType, ErrorFlags: esr1})
}
