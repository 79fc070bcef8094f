package slcan

import (
	"bufio"
	"sync"
	"time"

	flexcan "github.com/flexcan-go/flexcan"
	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// Bus backend for SLCAN adapters (Lawicel CANUSB and compatibles) over a
// serial port.

func init() {
	flexcan.RegisterInterface("slcan", NewSlcanBus)
}

type Bus struct {
	mu           sync.Mutex
	channel      string
	port         *serial.Port
	framehandler flexcan.FrameListener
	stopChan     chan bool
	wg           sync.WaitGroup
	isRunning    bool
}

func NewSlcanBus(channel string) (flexcan.Bus, error) {
	return &Bus{channel: channel, stopChan: make(chan bool)}, nil
}

// "Connect" opens the serial port and the CAN channel. The adapter is set
// to 500 kbit before opening ("S6" in the Lawicel command set).
func (b *Bus) Connect(...any) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        b.channel,
		Baud:        115200,
		ReadTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		return err
	}
	b.port = port
	if _, err := port.Write([]byte("S6\rO\r")); err != nil {
		_ = port.Close()
		return err
	}
	return nil
}

// "Disconnect" closes the CAN channel and the serial port.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isRunning {
		b.stopChan <- true
		b.wg.Wait()
	}
	if b.port != nil {
		_, _ = b.port.Write([]byte("C\r"))
		return b.port.Close()
	}
	return nil
}

// "Send" implementation of Bus interface
func (b *Bus) Send(frame flexcan.Frame) error {
	if b.port == nil {
		return flexcan.ErrNotAttached
	}
	line, err := Marshal(frame)
	if err != nil {
		return err
	}
	_, err = b.port.Write(line)
	return err
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(framehandler flexcan.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.framehandler = framehandler
	if b.isRunning {
		return nil
	}
	b.wg.Add(1)
	b.isRunning = true
	go b.handleReception()
	return nil
}

// Handle incoming traffic. Adapter status replies and malformed lines are
// skipped, only frame lines reach the handler.
func (b *Bus) handleReception() {
	defer func() {
		b.isRunning = false
		b.wg.Done()
	}()
	reader := bufio.NewReader(b.port)
	for {
		select {
		case <-b.stopChan:
			return
		default:
			line, err := reader.ReadBytes('\r')
			if err != nil {
				// Read timeouts surface as io errors with partial data
				continue
			}
			line = line[:len(line)-1]
			if len(line) == 0 {
				continue
			}
			switch line[0] {
			case 't', 'T', 'r', 'R':
				frame, err := Unmarshal(line)
				if err != nil {
					log.Warnf("[SLCAN] dropping malformed line : %v", err)
					continue
				}
				if b.framehandler != nil {
					b.framehandler.Handle(frame)
				}
			}
		}
	}
}
