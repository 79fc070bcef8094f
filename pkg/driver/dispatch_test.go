package driver

import (
	"testing"

	flexcan "github.com/flexcan-go/flexcan"
	"github.com/stretchr/testify/assert"
)

func TestDispatchLowestIndexOnly(t *testing.T) {
	d, bank := newTestDriver()
	sink := &recordingSink{}
	assert.Nil(t, d.RegisterCallback(0, sink))

	// Mailbox 3 holds a received frame, mailbox 9 finished a transmission,
	// both flags pending
	staged := flexcan.Message{ID: 0x155, DataLength: 2, Data: [8]byte{0xCA, 0xFE}}
	stageRxFrame(bank, 3, staged)
	bank.regs[flexcan.MBOffset(9)] = flexcan.CodeTxInactive << flexcan.CS_CODE_SHIFT
	bank.regs[flexcan.RegIFLAG1] |= 1 << 9

	d.OnInterrupt(0)

	// Exactly one event, for the lowest pending mailbox
	assert.Len(t, sink.events, 1)
	assert.Equal(t, EventRxComplete, sink.events[0].Type)
	assert.EqualValues(t, 3, sink.events[0].MBIndex)
	assert.Equal(t, staged, *sink.events[0].Message)

	// Mailbox 9 stays pending for the next invocation
	assert.EqualValues(t, 1<<9, bank.regs[flexcan.RegIFLAG1])

	d.OnInterrupt(0)
	assert.Len(t, sink.events, 2)
	assert.Equal(t, EventTxComplete, sink.events[1].Type)
	assert.EqualValues(t, 9, sink.events[1].MBIndex)
	assert.Zero(t, bank.regs[flexcan.RegIFLAG1])
}

func TestDispatchRearmsRxMailbox(t *testing.T) {
	d, bank := newTestDriver()
	sink := &recordingSink{}
	assert.Nil(t, d.RegisterCallback(0, sink))

	staged := flexcan.Message{ID: 0x1ABCDEF0, IDType: flexcan.IDExtended, DataLength: 4, Data: [8]byte{1, 2, 3, 4}}
	stageRxFrame(bank, 16, staged)

	d.OnInterrupt(0)

	cs := bank.regs[flexcan.MBOffset(16)]
	assert.Equal(t, flexcan.CodeRxEmpty, (cs&flexcan.CS_CODE_MASK)>>flexcan.CS_CODE_SHIFT)
	// Identifier format survives the re-arm
	assert.NotZero(t, cs&flexcan.CS_IDE)
}

func TestDispatchClampsDLC(t *testing.T) {
	d, bank := newTestDriver()
	sink := &recordingSink{}
	assert.Nil(t, d.RegisterCallback(0, sink))

	// A corrupted mailbox can report DLC above 8
	bank.regs[flexcan.MBOffset(16)] = flexcan.CodeRxFull<<flexcan.CS_CODE_SHIFT |
		uint32(12)<<flexcan.CS_DLC_SHIFT
	bank.regs[flexcan.RegIFLAG1] |= 1 << 16

	d.OnInterrupt(0)

	assert.Len(t, sink.events, 1)
	assert.EqualValues(t, 8, sink.events[0].Message.DataLength)
}

func TestDispatchWithoutSink(t *testing.T) {
	d, bank := newTestDriver()

	stageRxFrame(bank, 16, flexcan.Message{ID: 0x1, DataLength: 1})
	d.OnInterrupt(0)

	// Nothing consumed without a registered sink
	assert.EqualValues(t, 1<<16, bank.regs[flexcan.RegIFLAG1])
}

func TestDispatchNoPendingFlags(t *testing.T) {
	d, bank := newTestDriver()
	sink := &recordingSink{}
	assert.Nil(t, d.RegisterCallback(0, sink))

	d.OnInterrupt(0)
	assert.Empty(t, sink.events)
	assert.Zero(t, bank.writeCount)
}

func TestErrorDispatch(t *testing.T) {
	d, bank := newTestDriver()
	sink := &recordingSink{}
	assert.Nil(t, d.RegisterCallback(0, sink))

	bank.regs[flexcan.RegESR1] = 1 << flexcan.ESR1_FLTCONF_SHIFT
	d.OnErrorInterrupt(0)
	assert.Len(t, sink.events, 1)
	assert.Equal(t, EventError, sink.events[0].Type)

	bank.regs[flexcan.RegESR1] = 2 << flexcan.ESR1_FLTCONF_SHIFT
	d.OnErrorInterrupt(0)
	assert.Equal(t, EventBusOff, sink.events[1].Type)
}

func TestUnregisterCallbackStopsEvents(t *testing.T) {
	d, bank := newTestDriver()
	sink := &recordingSink{}
	assert.Nil(t, d.RegisterCallback(0, sink))
	assert.Nil(t, d.UnregisterCallback(0))

	stageRxFrame(bank, 16, flexcan.Message{ID: 0x1, DataLength: 1})
	d.OnInterrupt(0)
	assert.Empty(t, sink.events)
}
