package s32k

import (
	"sync"
)

// S32K144 interrupt vector numbers for the FlexCAN controllers. CAN0 has
// 32 mailboxes split over two lines, CAN1 and CAN2 have 16 mailboxes on a
// single line.
const (
	IRQ_CAN0_Error   = 79
	IRQ_CAN0_MB0_15  = 81
	IRQ_CAN0_MB16_31 = 82
	IRQ_CAN1_Error   = 86
	IRQ_CAN1_MB0_15  = 88
	IRQ_CAN2_Error   = 93
	IRQ_CAN2_MB0_15  = 94
)

// MailboxIRQ returns the vector number of the mailbox interrupt line for
// the given controller instance and mailbox index.
func MailboxIRQ(instance uint8, mbIndex uint8) int {
	switch instance {
	case 0:
		if mbIndex >= 16 {
			return IRQ_CAN0_MB16_31
		}
		return IRQ_CAN0_MB0_15
	case 1:
		return IRQ_CAN1_MB0_15
	default:
		return IRQ_CAN2_MB0_15
	}
}

// ErrorIRQ returns the vector number of the error interrupt line.
func ErrorIRQ(instance uint8) int {
	switch instance {
	case 0:
		return IRQ_CAN0_Error
	case 1:
		return IRQ_CAN1_Error
	default:
		return IRQ_CAN2_Error
	}
}

// NVIC emulates the interrupt controller : handlers registered per vector,
// per vector enable bits and priorities. Asserting an enabled vector runs
// its handler synchronously on the asserting goroutine, which models the
// interrupt preempting the code that caused it.
type NVIC struct {
	mu         sync.Mutex
	handlers   map[int]func()
	enabled    map[int]bool
	priorities map[int]uint8
}

func NewNVIC() *NVIC {
	return &NVIC{
		handlers:   make(map[int]func()),
		enabled:    make(map[int]bool),
		priorities: make(map[int]uint8),
	}
}

// SetHandler installs the service routine for a vector.
func (n *NVIC) SetHandler(irq int, handler func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[irq] = handler
}

// EnableInterrupt implements flexcan.InterruptController.
func (n *NVIC) EnableInterrupt(irq int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled[irq] = true
}

func (n *NVIC) DisableInterrupt(irq int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled[irq] = false
}

func (n *NVIC) SetPriority(irq int, priority uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.priorities[irq] = priority
}

// Assert raises a vector. The handler runs outside the NVIC lock so it
// may itself assert further interrupts.
func (n *NVIC) Assert(irq int) {
	n.mu.Lock()
	handler := n.handlers[irq]
	enabled := n.enabled[irq]
	n.mu.Unlock()

	if enabled && handler != nil {
		handler()
	}
}
