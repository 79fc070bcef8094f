package driver

import (
	flexcan "github.com/flexcan-go/flexcan"
)

// Driver event kinds, reported from interrupt context.
type EventType uint8

const (
	EventNone       EventType = 0
	EventTxComplete EventType = 1 // transmission finished, MBIndex valid
	EventRxComplete EventType = 2 // frame received, MBIndex and Message valid
	EventError      EventType = 3 // error interrupt, ErrorFlags valid
	EventBusOff     EventType = 4 // bus off entered, ErrorFlags valid
)

// Event carries the data of one dispatched controller event.
type Event struct {
	Type       EventType
	MBIndex    uint8
	Message    *flexcan.Message
	ErrorFlags uint32
}

// EventSink receives controller events. OnCanEvent is invoked from
// interrupt context and must be short and non blocking.
type EventSink interface {
	OnCanEvent(instance uint8, event Event)
}
