// Package service is the application facing CAN layer : one TX mailbox
// and up to two filtered RX mailboxes on a single controller instance,
// with events bridged to a plain callback. Applications use this package
// and never touch the driver or registers directly.
package service

import (
	"sync"

	flexcan "github.com/flexcan-go/flexcan"
	"github.com/flexcan-go/flexcan/pkg/driver"
	"github.com/flexcan-go/flexcan/pkg/s32k"
	log "github.com/sirupsen/logrus"
)

// Fixed mailbox assignment
const (
	TxMailbox          uint8 = 8
	RxMailboxPrimary   uint8 = 16
	RxMailboxSecondary uint8 = 17

	irqPriority uint8 = 5
)

// EventType is the simplified event set forwarded to applications.
type EventType uint8

const (
	EventTxComplete EventType = 0
	EventRxComplete EventType = 1
	EventError      EventType = 2
	EventBusOff     EventType = 3
)

// Message is the application view of a CAN message.
type Message struct {
	ID       uint32
	Data     [8]byte
	DLC      uint8
	Extended bool
	Remote   bool
}

// Callback receives CAN events. The message is non nil only for
// EventRxComplete. Runs in interrupt context, keep it short.
type Callback func(instance uint8, event EventType, message *Message)

// InterruptRouter is the interrupt controller surface the service needs :
// the standard enable/priority controls plus handler registration.
// Satisfied by s32k.NVIC.
type InterruptRouter interface {
	flexcan.InterruptController
	SetHandler(irq int, handler func())
}

// Config selects baudrate, operating mode and the RX acceptance filters.
// A zero FilterID2 disables the secondary filter.
type Config struct {
	Baudrate       uint32
	FilterID       uint32
	FilterMask     uint32
	FilterExtended bool
	FilterID2      uint32
	FilterMask2    uint32
	Mode           driver.Mode
}

// Service wires the driver, one controller instance and the interrupt
// routing together.
type Service struct {
	mu          sync.Mutex
	drv         *driver.Driver
	router      InterruptRouter
	instance    uint8
	initialized bool
	callback    Callback
}

// New creates a service for one controller instance. Init must be called
// before any other operation.
func New(drv *driver.Driver, router InterruptRouter, instance uint8) *Service {
	return &Service{drv: drv, router: router, instance: instance}
}

// Init brings the controller up : driver initialization, RX filters on
// the two service mailboxes, TX mailbox arming, event bridging and
// interrupt routing.
func (s *Service) Init(config Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.drv.Init(driver.Config{
		Instance:            s.instance,
		ClockSource:         flexcan.ClockSrcSOSCDIV2,
		BaudRate:            config.Baudrate,
		Mode:                config.Mode,
		EnableSelfReception: config.Mode == driver.ModeLoopback,
		UseRxFifo:           false,
	})
	if err != nil {
		return err
	}

	idType := flexcan.IDStandard
	if config.FilterExtended {
		idType = flexcan.IDExtended
	}
	err = s.drv.ConfigRxFilter(s.instance, RxMailboxPrimary, driver.RxFilter{
		ID:     config.FilterID,
		Mask:   config.FilterMask,
		IDType: idType,
	})
	if err != nil {
		return err
	}
	if config.FilterID2 != 0 {
		err = s.drv.ConfigRxFilter(s.instance, RxMailboxSecondary, driver.RxFilter{
			ID:     config.FilterID2,
			Mask:   config.FilterMask2,
			IDType: idType,
		})
		if err != nil {
			return err
		}
	}

	if err := s.drv.ConfigTxMailbox(s.instance, TxMailbox); err != nil {
		return err
	}
	if err := s.drv.RegisterCallback(s.instance, s); err != nil {
		return err
	}

	lowIRQ := s32k.MailboxIRQ(s.instance, 0)
	highIRQ := s32k.MailboxIRQ(s.instance, 16)
	for _, irq := range []int{lowIRQ, highIRQ} {
		s.router.SetHandler(irq, func() { s.drv.OnInterrupt(s.instance) })
		s.router.EnableInterrupt(irq)
		s.router.SetPriority(irq, irqPriority)
	}

	s.initialized = true
	log.Infof("[CAN_SRV] up on instance %d, filter 0x%X/0x%X", s.instance, config.FilterID, config.FilterMask)
	return nil
}

// RegisterCallback installs the application event callback.
func (s *Service) RegisterCallback(callback Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return flexcan.ErrNotInitialized
	}
	s.callback = callback
	return nil
}

// Send transmits a message on the service TX mailbox.
func (s *Service) Send(msg *Message) error {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		return flexcan.ErrNotInitialized
	}
	if msg == nil || msg.DLC > flexcan.MaxDataLength {
		return flexcan.ErrInvalidParam
	}

	drvMsg := flexcan.Message{
		ID:         msg.ID,
		DataLength: msg.DLC,
		Data:       msg.Data,
	}
	if msg.Extended {
		drvMsg.IDType = flexcan.IDExtended
	}
	if msg.Remote {
		drvMsg.FrameType = flexcan.FrameRemote
	}
	return s.drv.Send(s.instance, TxMailbox, &drvMsg)
}

// Deinit tears down interrupt routing and disables the controller.
func (s *Service) Deinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return flexcan.ErrNotInitialized
	}

	s.router.DisableInterrupt(s32k.MailboxIRQ(s.instance, 0))
	s.router.DisableInterrupt(s32k.MailboxIRQ(s.instance, 16))
	_ = s.drv.UnregisterCallback(s.instance)
	if err := s.drv.Deinit(s.instance); err != nil {
		return err
	}

	s.initialized = false
	s.callback = nil
	return nil
}

// OnCanEvent implements driver.EventSink, bridging driver events to the
// application callback.
func (s *Service) OnCanEvent(instance uint8, event driver.Event) {
	callback := s.callback
	if callback == nil {
		return
	}

	switch event.Type {
	case driver.EventTxComplete:
		callback(instance, EventTxComplete, nil)
	case driver.EventRxComplete:
		if event.Message == nil {
			return
		}
		callback(instance, EventRxComplete, &Message{
			ID:       event.Message.ID,
			Data:     event.Message.Data,
			DLC:      event.Message.DataLength,
			Extended: event.Message.IDType == flexcan.IDExtended,
			Remote:   event.Message.FrameType == flexcan.FrameRemote,
		})
	case driver.EventError:
		callback(instance, EventError, nil)
	case driver.EventBusOff:
		callback(instance, EventBusOff, nil)
	}
}
