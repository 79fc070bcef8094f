package virtual

import (
	"sync"
	"testing"
	"time"

	flexcan "github.com/flexcan-go/flexcan"
	"github.com/stretchr/testify/assert"
)

type FrameReceiver struct {
	mu     sync.Mutex
	frames []flexcan.Frame
}

func (frameReceiver *FrameReceiver) Handle(frame flexcan.Frame) {
	frameReceiver.mu.Lock()
	defer frameReceiver.mu.Unlock()
	frameReceiver.frames = append(frameReceiver.frames, frame)
}

func (frameReceiver *FrameReceiver) snapshot() []flexcan.Frame {
	frameReceiver.mu.Lock()
	defer frameReceiver.mu.Unlock()
	return append([]flexcan.Frame{}, frameReceiver.frames...)
}

func newConnectedBus(t *testing.T, addr string) *Bus {
	t.Helper()
	canBus, err := NewVirtualCanBus(addr)
	assert.Nil(t, err)
	vcan := canBus.(*Bus)
	assert.Nil(t, vcan.Connect())
	return vcan
}

func TestSerializeDeserialize(t *testing.T) {
	frame := flexcan.Frame{ID: 0x1ABCDEF0, Flags: flexcan.FrameFlagExtended, DLC: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	raw, err := serializeFrame(frame)
	assert.Nil(t, err)
	assert.Len(t, raw, 4+frameWireSize)

	back, err := deserializeFrame(raw[4:])
	assert.Nil(t, err)
	assert.Equal(t, frame, *back)
}

func TestSendAndSubscribe(t *testing.T) {
	server, err := NewServer("localhost:0")
	assert.Nil(t, err)
	defer server.Close()

	vcan1 := newConnectedBus(t, server.Addr().String())
	vcan2 := newConnectedBus(t, server.Addr().String())
	defer vcan1.Disconnect()
	defer vcan2.Disconnect()

	frameReceiver := FrameReceiver{}
	assert.Nil(t, vcan2.Subscribe(&frameReceiver))

	frame := flexcan.Frame{ID: 0x111, DLC: 8, Data: [8]byte{0, 1, 2, 3, 4, 5, 6, 7}}
	for i := 0; i < 10; i++ {
		frame.Data[0] = uint8(i)
		assert.Nil(t, vcan1.Send(frame))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(frameReceiver.snapshot()) >= 10 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	frames := frameReceiver.snapshot()
	assert.Len(t, frames, 10)
	for i, received := range frames {
		assert.EqualValues(t, 0x111, received.ID)
		assert.EqualValues(t, uint8(i), received.Data[0])
	}
}

func TestNoEchoToSender(t *testing.T) {
	server, err := NewServer("localhost:0")
	assert.Nil(t, err)
	defer server.Close()

	vcan1 := newConnectedBus(t, server.Addr().String())
	defer vcan1.Disconnect()

	frameReceiver := FrameReceiver{}
	assert.Nil(t, vcan1.Subscribe(&frameReceiver))

	assert.Nil(t, vcan1.Send(flexcan.Frame{ID: 0x111, DLC: 1, Data: [8]byte{1}}))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, frameReceiver.snapshot())
}

func TestReceiveOwn(t *testing.T) {
	server, err := NewServer("localhost:0")
	assert.Nil(t, err)
	defer server.Close()

	vcan1 := newConnectedBus(t, server.Addr().String())
	defer vcan1.Disconnect()

	frameReceiver := FrameReceiver{}
	assert.Nil(t, vcan1.Subscribe(&frameReceiver))
	vcan1.SetReceiveOwn(true)

	assert.Nil(t, vcan1.Send(flexcan.Frame{ID: 0x111, DLC: 1, Data: [8]byte{1}}))
	assert.NotEmpty(t, frameReceiver.snapshot())
}

func TestServerClientCount(t *testing.T) {
	server, err := NewServer("localhost:0")
	assert.Nil(t, err)
	defer server.Close()

	vcan1 := newConnectedBus(t, server.Addr().String())
	vcan2 := newConnectedBus(t, server.Addr().String())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && server.ClientCount() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 2, server.ClientCount())

	assert.Nil(t, vcan1.Disconnect())
	assert.Nil(t, vcan2.Disconnect())
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && server.ClientCount() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Zero(t, server.ClientCount())
}
