package slcan

import (
	"fmt"
	"strconv"

	flexcan "github.com/flexcan-go/flexcan"
)

// SLCAN (Lawicel) ASCII framing. A data frame is 't'+3 hex id digits for
// standard identifiers or 'T'+8 for extended, then one DLC digit and the
// payload in hex, terminated by CR. Remote frames use 'r'/'R' and carry
// no payload.

const hexDigits = "0123456789ABCDEF"

// Marshal encodes a frame into its SLCAN ASCII representation.
func Marshal(frame flexcan.Frame) ([]byte, error) {
	if frame.DLC > flexcan.MaxDataLength {
		return nil, flexcan.ErrInvalidParam
	}

	extended := frame.Flags&flexcan.FrameFlagExtended != 0
	remote := frame.Flags&flexcan.FrameFlagRemote != 0

	out := make([]byte, 0, 27)
	switch {
	case extended && remote:
		out = append(out, 'R')
	case extended:
		out = append(out, 'T')
	case remote:
		out = append(out, 'r')
	default:
		out = append(out, 't')
	}

	idDigits := 3
	id := frame.ID & 0x7FF
	if extended {
		idDigits = 8
		id = frame.ID & 0x1FFFFFFF
	}
	for i := idDigits - 1; i >= 0; i-- {
		out = append(out, hexDigits[(id>>(uint(i)*4))&0xF])
	}

	out = append(out, hexDigits[frame.DLC])
	if !remote {
		for i := uint8(0); i < frame.DLC; i++ {
			out = append(out, hexDigits[frame.Data[i]>>4], hexDigits[frame.Data[i]&0xF])
		}
	}
	return append(out, '\r'), nil
}

// Unmarshal decodes one SLCAN line, without the CR terminator.
func Unmarshal(line []byte) (flexcan.Frame, error) {
	var frame flexcan.Frame
	if len(line) == 0 {
		return frame, flexcan.ErrNoData
	}

	idDigits := 3
	switch line[0] {
	case 't':
	case 'T':
		frame.Flags |= flexcan.FrameFlagExtended
		idDigits = 8
	case 'r':
		frame.Flags |= flexcan.FrameFlagRemote
	case 'R':
		frame.Flags |= flexcan.FrameFlagExtended | flexcan.FrameFlagRemote
		idDigits = 8
	default:
		return frame, fmt.Errorf("slcan : unknown frame type %q", line[0])
	}

	if len(line) < 1+idDigits+1 {
		return frame, fmt.Errorf("slcan : truncated frame %q", line)
	}
	id, err := strconv.ParseUint(string(line[1:1+idDigits]), 16, 32)
	if err != nil {
		return frame, fmt.Errorf("slcan : bad identifier : %v", err)
	}
	frame.ID = uint32(id)

	dlc, err := strconv.ParseUint(string(line[1+idDigits:2+idDigits]), 16, 8)
	if err != nil || dlc > uint64(flexcan.MaxDataLength) {
		return frame, fmt.Errorf("slcan : bad DLC in %q", line)
	}
	frame.DLC = uint8(dlc)

	if frame.Flags&flexcan.FrameFlagRemote != 0 {
		return frame, nil
	}
	dataStart := 2 + idDigits
	if len(line) < dataStart+int(frame.DLC)*2 {
		return frame, fmt.Errorf("slcan : truncated payload %q", line)
	}
	for i := uint8(0); i < frame.DLC; i++ {
		b, err := strconv.ParseUint(string(line[dataStart+int(i)*2:dataStart+int(i)*2+2]), 16, 8)
		if err != nil {
			return frame, fmt.Errorf("slcan : bad payload byte : %v", err)
		}
		frame.Data[i] = uint8(b)
	}
	return frame, nil
}
