package driver

import (
	"testing"
	"time"

	flexcan "github.com/flexcan-go/flexcan"
	"github.com/stretchr/testify/assert"
)

// stageRxFrame plants a received frame into a mock bank mailbox the way
// the hardware matching pipeline would.
func stageRxFrame(bank *mockBank, mbIndex uint8, msg flexcan.Message) {
	cs := flexcan.CodeRxFull<<flexcan.CS_CODE_SHIFT |
		uint32(msg.DataLength)<<flexcan.CS_DLC_SHIFT
	if msg.IDType == flexcan.IDExtended {
		cs |= flexcan.CS_IDE
	}
	if msg.FrameType == flexcan.FrameRemote {
		cs |= flexcan.CS_RTR
	}
	bank.regs[flexcan.MBOffset(mbIndex)] = cs
	bank.regs[flexcan.MBOffset(mbIndex)+4] = encodeID(msg.ID, msg.IDType)
	word0, word1 := packDataWords(msg.Data)
	bank.regs[flexcan.MBOffset(mbIndex)+8] = word0
	bank.regs[flexcan.MBOffset(mbIndex)+12] = word1
	bank.regs[flexcan.RegIFLAG1] |= uint32(1) << mbIndex
}

func TestReceiveNoData(t *testing.T) {
	d, bank := newTestDriver()

	msg, err := d.Receive(0, 16)
	assert.Equal(t, flexcan.ErrNoData, err)
	assert.Nil(t, msg)
	// The empty check is read only
	assert.Zero(t, bank.writeCount)
}

func TestReceiveValidation(t *testing.T) {
	d, _ := newTestDriver()
	_, err := d.Receive(0, 15)
	assert.Equal(t, flexcan.ErrInvalidParam, err)
	_, err = d.Receive(0, 32)
	assert.Equal(t, flexcan.ErrInvalidParam, err)
	_, err = d.Receive(5, 16)
	assert.Equal(t, flexcan.ErrInvalidParam, err)
}

func TestReceiveStagedFrame(t *testing.T) {
	d, bank := newTestDriver()

	staged := flexcan.Message{
		ID:         0x2A5,
		IDType:     flexcan.IDStandard,
		DataLength: 5,
		Data:       [8]byte{10, 20, 30, 40, 50},
	}
	stageRxFrame(bank, 16, staged)

	msg, err := d.Receive(0, 16)
	assert.Nil(t, err)
	assert.Equal(t, staged, *msg)
	// Pending flag consumed by the read sequence
	assert.Zero(t, bank.regs[flexcan.RegIFLAG1]&(1<<16))
}

func TestConfigRxFilterScenarios(t *testing.T) {
	d, controller := newEmulatedDriver()
	err := d.Init(Config{Instance: 0, ClockSource: flexcan.ClockSrcBusClock, BaudRate: 500_000})
	assert.Nil(t, err)

	// 0x200 with mask 0x700 accepts the whole 0x200-0x2FF block
	assert.Nil(t, d.ConfigRxFilter(0, 16, RxFilter{ID: 0x200, Mask: 0x700, IDType: flexcan.IDStandard}))

	controller.Handle(flexcan.Frame{ID: 0x2AB, DLC: 2, Data: [8]byte{1, 2}})
	msg, err := d.Receive(0, 16)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x2AB, msg.ID)

	controller.Handle(flexcan.Frame{ID: 0x300, DLC: 1})
	_, err = d.Receive(0, 16)
	assert.Equal(t, flexcan.ErrNoData, err)

	controller.Handle(flexcan.Frame{ID: 0x2FF, DLC: 0})
	msg, err = d.Receive(0, 16)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x2FF, msg.ID)
	assert.Zero(t, msg.DataLength)
}

func TestReceiveBlockingTimeout(t *testing.T) {
	d, _ := newTestDriver()
	d.SetClock(&fakeClock{step: time.Millisecond})

	_, err := d.ReceiveBlocking(0, 16, 10)
	assert.Equal(t, flexcan.ErrTimeout, err)
}

func TestSetupRxMailboxOnLiveController(t *testing.T) {
	d, controller := newEmulatedDriver()
	err := d.Init(Config{Instance: 0, ClockSource: flexcan.ClockSrcBusClock, BaudRate: 500_000})
	assert.Nil(t, err)

	// Reconfigure a filter after init, under freeze
	assert.Nil(t, d.SetupRxMailbox(0, 17, 0x400, flexcan.IDStandard, 0x7FF))

	// Controller came back out of freeze
	assert.Zero(t, controller.Read(flexcan.RegMCR)&flexcan.MCR_FRZACK)

	controller.Handle(flexcan.Frame{ID: 0x400, DLC: 1, Data: [8]byte{7}})
	msg, err := d.Receive(0, 17)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x400, msg.ID)
}

func TestRxOverrun(t *testing.T) {
	d, controller := newEmulatedDriver()
	err := d.Init(Config{Instance: 0, ClockSource: flexcan.ClockSrcBusClock, BaudRate: 500_000})
	assert.Nil(t, err)
	assert.Nil(t, d.ConfigRxFilter(0, 16, RxFilter{ID: 0x100, Mask: 0x7FF, IDType: flexcan.IDStandard}))

	controller.Handle(flexcan.Frame{ID: 0x100, DLC: 1, Data: [8]byte{1}})
	controller.Handle(flexcan.Frame{ID: 0x100, DLC: 1, Data: [8]byte{2}})

	// Second frame overwrote the first, mailbox reports the overrun code
	cs := controller.Read(flexcan.MBOffset(16))
	assert.Equal(t, flexcan.CodeRxOverrun, (cs&flexcan.CS_CODE_MASK)>>flexcan.CS_CODE_SHIFT)

	msg, err := d.Receive(0, 16)
	assert.Nil(t, err)
	assert.EqualValues(t, 2, msg.Data[0])
}
