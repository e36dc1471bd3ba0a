package transport

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/roffe/godali"
)

// Line protocol spoken by the SevenLab dongle and the gateways wrapping
// it. Commands are single lines ending in CR:
//
//	Y<data>                  backward frame
//	S<prio> <len><twice><data>   forward frame
//	Q<prio> <len><twice><data>   forward frame with the reply window held open
//
// The dongle reports bus activity as {TTTTTTTTMLL DDDDDDDD} where T is the
// tick counter, M the loopback marker ('>' for echoes of our own
// transmission), L the bit length or a status code and D the frame data.

// maxBitLength is the longest frame the dongle can produce
const maxBitLength = 32

const (
	codeTimeout             = 0x81
	codeBadStartBitTiming   = 0x82
	codeBadDataBitTiming    = 0x83
	codeCollisionLoopback   = 0x84
	codeCollisionNoChange   = 0x85
	codeCollisionWrongState = 0x86
	codeSettlingTime        = 0x87
	codeSystemIdle          = 0x90
	codeSystemFailure       = 0x91
	codeSystemRecovered     = 0x92
	codeCommandNotProcessed = 0xA0
	codeCommandBadArgument  = 0xA1
	codeQueueIsFull         = 0xA2
	codeCommandBad          = 0xA3
	codeBufferOverflow      = 0xA4
)

type lineEvent int

const (
	eventNone lineEvent = iota
	eventFrame
	eventFailure
	eventRecover
)

func commandString(f *godali.Frame, isQuery bool) string {
	if f.Length == godali.LengthBackward {
		return fmt.Sprintf("Y%X\r", f.Data)
	}
	cmd := byte('S')
	if isQuery {
		cmd = 'Q'
	}
	twice := byte(' ')
	if f.SendTwice {
		twice = '+'
	}
	return fmt.Sprintf("%c%d %X%c%X\r", cmd, f.Priority, f.Length, twice, f.Data)
}

// parseLine interprets one dongle report. Frames (including corrupted
// ones, reported with Collision or FramingError status) come back with
// eventFrame; pure status reports map to events or errors.
func parseLine(line string) (*godali.Frame, lineEvent, error) {
	start := strings.IndexByte(line, '{')
	end := strings.IndexByte(line, '}')
	if start < 0 || end < start {
		return nil, eventNone, fmt.Errorf("malformed line %q", line)
	}
	payload := line[start+1 : end]
	if len(payload) < 20 {
		return nil, eventNone, fmt.Errorf("short payload %q", payload)
	}
	if _, err := strconv.ParseUint(payload[0:8], 16, 32); err != nil {
		return nil, eventNone, fmt.Errorf("bad tick counter in %q: %w", payload, err)
	}
	loopback := payload[8] == '>'
	code64, err := strconv.ParseUint(payload[9:11], 16, 16)
	if err != nil {
		return nil, eventNone, fmt.Errorf("bad length field in %q: %w", payload, err)
	}
	data64, err := strconv.ParseUint(payload[12:20], 16, 32)
	if err != nil {
		return nil, eventNone, fmt.Errorf("bad data field in %q: %w", payload, err)
	}
	code := int(code64)
	data := uint32(data64)

	switch {
	case code <= maxBitLength:
		return &godali.Frame{
			Data:    data,
			Length:  uint8(code),
			Type:    godali.Incoming,
			Status:  godali.OK,
			Message: "OK",
			Echo:    loopback,
		}, eventFrame, nil
	case code == codeTimeout, code == codeSettlingTime, code == codeSystemIdle:
		// reply window bookkeeping of the dongle, the client keeps its
		// own deadlines
		return nil, eventNone, nil
	case code == codeBadStartBitTiming, code == codeBadDataBitTiming:
		kind := "start"
		if code == codeBadDataBitTiming {
			kind = "data"
		}
		bit := data & 0xFF
		timerUS := (data >> 8) & 0xFFFFF
		return &godali.Frame{
			Type:    godali.Incoming,
			Status:  godali.FramingError,
			Message: fmt.Sprintf("bad %s bit timing: bit %d at %d usec", kind, bit, timerUS),
		}, eventFrame, nil
	case code >= codeCollisionLoopback && code <= codeCollisionWrongState:
		return &godali.Frame{
			Type:    godali.Incoming,
			Status:  godali.Collision,
			Message: "collision detected",
		}, eventFrame, nil
	case code == codeSystemFailure:
		return nil, eventFailure, nil
	case code == codeSystemRecovered:
		return nil, eventRecover, nil
	case code >= codeCommandNotProcessed && code <= codeBufferOverflow:
		return nil, eventNone, fmt.Errorf("interface error 0x%02X", code)
	}
	return nil, eventNone, fmt.Errorf("unknown status code 0x%02X", code)
}

// feedLines reassembles CR/LF terminated lines from a raw chunk
func feedLines(buff *bytes.Buffer, data []byte, handle func(string)) {
	for _, b := range data {
		if b == '\r' || b == '\n' {
			if buff.Len() > 0 {
				handle(buff.String())
				buff.Reset()
			}
			continue
		}
		buff.WriteByte(b)
	}
}
