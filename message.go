package flexcan

// Maximum payload of a classic CAN frame
const MaxDataLength = 8

// CAN identifier type. Standard and extended identifiers occupy disjoint
// bit ranges inside a mailbox ID word and must never be mixed.
type IDType uint8

const (
	IDStandard IDType = 0 // 11-bit identifier
	IDExtended IDType = 1 // 29-bit identifier
)

// CAN frame type
type FrameType uint8

const (
	FrameData   FrameType = 0 // data frame carrying a payload
	FrameRemote FrameType = 1 // remote frame requesting data
)

// A Message is the application level view of one CAN frame. It is a pure
// value, copied by the driver into and out of mailbox RAM.
type Message struct {
	ID         uint32
	IDType     IDType
	FrameType  FrameType
	DataLength uint8
	Data       [MaxDataLength]byte
}

// ToFrame converts a message to its wire representation.
func (m *Message) ToFrame() Frame {
	frame := Frame{ID: m.ID, DLC: m.DataLength, Data: m.Data}
	if m.IDType == IDExtended {
		frame.Flags |= FrameFlagExtended
	}
	if m.FrameType == FrameRemote {
		frame.Flags |= FrameFlagRemote
	}
	return frame
}

// MessageFromFrame converts a wire frame back to a message.
func MessageFromFrame(frame Frame) Message {
	msg := Message{ID: frame.ID, DataLength: frame.DLC, Data: frame.Data}
	if frame.DLC > MaxDataLength {
		msg.DataLength = MaxDataLength
	}
	if frame.Flags&FrameFlagExtended != 0 {
		msg.IDType = IDExtended
	}
	if frame.Flags&FrameFlagRemote != 0 {
		msg.FrameType = FrameRemote
	}
	return msg
}
