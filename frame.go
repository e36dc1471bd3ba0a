package godali

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

type FrameType int

const (
	// Incoming marks a frame read from the bus
	Incoming FrameType = iota
	// Outgoing marks a frame we put on the bus
	Outgoing
	// Query marks an outgoing frame the hardware should hold the reply
	// window open for
	Query
)

const (
	// DefaultPriority is the bus priority used when a frame does not set one
	DefaultPriority uint8 = 2
	// MaxPriority is the lowest legal bus priority
	MaxPriority uint8 = 5
)

// Legal DALI frame lengths in bits. 24 bit frames are the input device
// variant, 17 bit frames are used during firmware updates.
const (
	LengthBackward uint8 = 8
	LengthForward  uint8 = 16
	LengthFirmware uint8 = 17
	LengthInput    uint8 = 24
)

// Frame is one DALI bus frame plus its transmission or reception outcome.
// Status and Timestamp are metadata, identity is Data+Length only.
// A frame handed out by the client is never mutated afterwards.
type Frame struct {
	Data      uint32
	Length    uint8
	Type      FrameType
	Priority  uint8
	SendTwice bool
	Status    Status
	Message   string
	Timestamp time.Time
	// Echo is set by drivers on the loopback of our own transmission.
	// Echo frames signal send completion and are never queued.
	Echo bool
}

// NewFrame creates a frame ready for transmission. The length must be one of
// the legal DALI frame lengths or ErrInvalidFrameLength is returned.
func NewFrame(length uint8, data uint32) (*Frame, error) {
	if !LegalLength(length) {
		return nil, fmt.Errorf("%w: %d bits", ErrInvalidFrameLength, length)
	}
	return &Frame{
		Data:     data,
		Length:   length,
		Type:     Outgoing,
		Priority: DefaultPriority,
		Status:   NotSent,
		Message:  "NOT SENT",
	}, nil
}

func LegalLength(length uint8) bool {
	switch length {
	case LengthBackward, LengthForward, LengthFirmware, LengthInput:
		return true
	}
	return false
}

// IsBackward reports whether this is a backward frame. All frames of 8 bit
// or less are treated as backward frames.
func (f *Frame) IsBackward() bool {
	return f.Length <= LengthBackward
}

// Equal compares payload and length only
func (f *Frame) Equal(other *Frame) bool {
	return other != nil && f.Data == other.Data && f.Length == other.Length
}

var (
	green  = color.New(color.FgGreen).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	yellow = color.New(color.FgHiBlue).SprintfFunc()
)

func (f *Frame) direction() string {
	if f.Echo {
		return "<e>"
	}
	switch f.Type {
	case Outgoing:
		return "<o>"
	case Query:
		return "<q>"
	default:
		return "<i>"
	}
}

func (f *Frame) hexView() string {
	digits := (int(f.Length) + 3) / 4
	if digits < 2 {
		digits = 2
	}
	return fmt.Sprintf("0x%0*X", digits, f.Data)
}

func (f *Frame) binView() string {
	var out strings.Builder
	for i := int(f.Length) - 1; i >= 0; i-- {
		if f.Data&(1<<uint(i)) != 0 {
			out.WriteByte('1')
		} else {
			out.WriteByte('0')
		}
		if i%8 == 0 && i != 0 {
			out.WriteByte(' ')
		}
	}
	return out.String()
}

func (f *Frame) String() string {
	var out strings.Builder
	out.WriteString(f.direction() + " || ")
	out.WriteString(fmt.Sprintf("%2d", f.Length) + " || ")
	out.WriteString(fmt.Sprintf("%-10s", f.hexView()) + " || ")
	out.WriteString(fmt.Sprintf("%-29s", f.binView()) + " || ")
	out.WriteString(f.Status.String())
	if f.Message != "" && f.Message != f.Status.String() {
		out.WriteString(" || " + f.Message)
	}
	return out.String()
}

func (f *Frame) ColorString() string {
	var out strings.Builder
	out.WriteString(f.direction() + " || ")
	out.WriteString(fmt.Sprintf("%2d", f.Length) + " || ")
	out.WriteString(green("%-10s", f.hexView()) + " || ")
	out.WriteString(red("%-29s", f.binView()) + " || ")
	if f.Status == OK {
		out.WriteString(f.Status.String())
	} else {
		out.WriteString(yellow("%s", f.Status.String()))
	}
	if f.Message != "" && f.Message != f.Status.String() {
		out.WriteString(" || " + f.Message)
	}
	return out.String()
}
