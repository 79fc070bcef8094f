package flexcan

import "errors"

var (
	ErrInvalidParam   = errors.New("error in function arguments")
	ErrTimeout        = errors.New("function timeout")
	ErrNotInitialized = errors.New("controller not initialized")
	ErrNoData         = errors.New("no message available")
	ErrBusy           = errors.New("mailbox is busy")
	ErrNotAttached    = errors.New("no register bank attached to instance")
)
