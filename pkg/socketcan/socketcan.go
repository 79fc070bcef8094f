package socketcan

import (
	sockcan "github.com/brutella/can"
	flexcan "github.com/flexcan-go/flexcan"
)

// Basic wrapper for socketcan it uses the implementation
// that can be found here : https://github.com/brutella/can

func init() {
	flexcan.RegisterInterface("socketcan", NewSocketCanBus)
}

// Linux CAN ID flag bits, carried in the upper bits of the wire ID
const (
	canEffFlag uint32 = 0x80000000
	canRtrFlag uint32 = 0x40000000
	canSffMask uint32 = 0x000007FF
	canEffMask uint32 = 0x1FFFFFFF
)

type SocketcanBus struct {
	bus        *sockcan.Bus
	rxCallback flexcan.FrameListener
}

// "Connect" implementation of Bus interface
func (socketcan *SocketcanBus) Connect(...any) error {
	go func() {
		err := socketcan.bus.ConnectAndPublish()
		if err != nil {
			return
		}
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (socketcan *SocketcanBus) Disconnect() error {
	return socketcan.bus.Disconnect()
}

// "Send" implementation of Bus interface
func (socketcan *SocketcanBus) Send(frame flexcan.Frame) error {
	id := frame.ID & canSffMask
	if frame.Flags&flexcan.FrameFlagExtended != 0 {
		id = frame.ID&canEffMask | canEffFlag
	}
	if frame.Flags&flexcan.FrameFlagRemote != 0 {
		id |= canRtrFlag
	}
	return socketcan.bus.Publish(
		sockcan.Frame{
			ID:     id,
			Length: frame.DLC,
			Flags:  0,
			Res0:   0,
			Res1:   0,
			Data:   frame.Data,
		})
}

// "Subscribe" implementation of Bus interface
func (socketcan *SocketcanBus) Subscribe(rxCallback flexcan.FrameListener) error {
	socketcan.rxCallback = rxCallback
	// brutella/can defines a "Handle" interface for handling received CAN frames
	socketcan.bus.Subscribe(socketcan)
	return nil
}

// brutella/can specific "Handle" implementation
func (socketcan *SocketcanBus) Handle(frame sockcan.Frame) {
	if socketcan.rxCallback == nil {
		return
	}
	// Convert brutella frame, moving the flag bits out of the wire ID
	var flags uint8
	id := frame.ID & canSffMask
	if frame.ID&canEffFlag != 0 {
		flags |= flexcan.FrameFlagExtended
		id = frame.ID & canEffMask
	}
	if frame.ID&canRtrFlag != 0 {
		flags |= flexcan.FrameFlagRemote
	}
	socketcan.rxCallback.Handle(flexcan.Frame{ID: id, DLC: frame.Length, Flags: flags, Data: frame.Data})
}

func NewSocketCanBus(name string) (flexcan.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	return &SocketcanBus{bus: bus}, err
}
