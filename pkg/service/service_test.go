package service

import (
	"testing"

	flexcan "github.com/flexcan-go/flexcan"
	"github.com/flexcan-go/flexcan/pkg/driver"
	"github.com/flexcan-go/flexcan/pkg/s32k"
	"github.com/stretchr/testify/assert"
)

// newTestStack builds a full emulated node : controller model, NVIC,
// driver and service, no bus attached. Loopback mode makes the node self
// contained.
func newTestStack(t *testing.T) *Service {
	t.Helper()
	nvic := s32k.NewNVIC()
	controller := s32k.NewFlexCAN(0)
	controller.ConnectNVIC(nvic)

	drv := driver.New(s32k.DefaultClocks())
	assert.Nil(t, drv.Attach(0, controller))
	return New(drv, nvic, 0)
}

func TestServiceLoopbackRoundTrip(t *testing.T) {
	srv := newTestStack(t)
	err := srv.Init(Config{
		Baudrate:   500_000,
		FilterID:   0x123,
		FilterMask: 0x7FF,
		Mode:       driver.ModeLoopback,
	})
	assert.Nil(t, err)

	var received []Message
	var txCompletions int
	assert.Nil(t, srv.RegisterCallback(func(instance uint8, event EventType, message *Message) {
		switch event {
		case EventTxComplete:
			txCompletions++
		case EventRxComplete:
			received = append(received, *message)
		}
	}))

	msg := Message{ID: 0x123, DLC: 3, Data: [8]byte{0xA, 0xB, 0xC}}
	assert.Nil(t, srv.Send(&msg))

	// Loopback delivery is synchronous in the emulated stack
	assert.Equal(t, 1, txCompletions)
	assert.Len(t, received, 1)
	assert.Equal(t, msg, received[0])
}

func TestServiceSecondaryFilter(t *testing.T) {
	srv := newTestStack(t)
	err := srv.Init(Config{
		Baudrate:    500_000,
		FilterID:    0x100,
		FilterMask:  0x7FF,
		FilterID2:   0x200,
		FilterMask2: 0x7FF,
		Mode:        driver.ModeLoopback,
	})
	assert.Nil(t, err)

	var ids []uint32
	assert.Nil(t, srv.RegisterCallback(func(instance uint8, event EventType, message *Message) {
		if event == EventRxComplete {
			ids = append(ids, message.ID)
		}
	}))

	assert.Nil(t, srv.Send(&Message{ID: 0x100, DLC: 1}))
	assert.Nil(t, srv.Send(&Message{ID: 0x200, DLC: 1}))
	assert.Nil(t, srv.Send(&Message{ID: 0x300, DLC: 1}))

	// 0x300 matches neither filter
	assert.Equal(t, []uint32{0x100, 0x200}, ids)
}

func TestServiceNotInitialized(t *testing.T) {
	srv := newTestStack(t)

	assert.Equal(t, flexcan.ErrNotInitialized, srv.Send(&Message{ID: 0x1, DLC: 1}))
	assert.Equal(t, flexcan.ErrNotInitialized, srv.RegisterCallback(func(uint8, EventType, *Message) {}))
	assert.Equal(t, flexcan.ErrNotInitialized, srv.Deinit())
}

func TestServiceSendValidation(t *testing.T) {
	srv := newTestStack(t)
	assert.Nil(t, srv.Init(Config{Baudrate: 500_000, FilterID: 0x1, FilterMask: 0x7FF, Mode: driver.ModeLoopback}))

	assert.Equal(t, flexcan.ErrInvalidParam, srv.Send(nil))
	assert.Equal(t, flexcan.ErrInvalidParam, srv.Send(&Message{ID: 0x1, DLC: 9}))
}

func TestServiceDeinit(t *testing.T) {
	srv := newTestStack(t)
	assert.Nil(t, srv.Init(Config{Baudrate: 500_000, FilterID: 0x1, FilterMask: 0x7FF, Mode: driver.ModeLoopback}))
	assert.Nil(t, srv.Deinit())
	assert.Equal(t, flexcan.ErrNotInitialized, srv.Send(&Message{ID: 0x1, DLC: 1}))
}
