package godali

import (
	"context"
	"log"
	"time"
)

// Transport is the capability contract a concrete bus driver satisfies.
// The client owns the send/receive pairing, the driver only moves frames.
type Transport interface {
	Name() string
	Open(context.Context) error
	// Send writes the frame to the bus. It may block until the bus accepts
	// the frame, not until it is acknowledged. A frame with Type Query
	// tells the hardware to hold the reply window open.
	Send(*Frame) error
	// Poll blocks up to timeout for one inbound frame and returns nil, nil
	// when the wait expires. A negative timeout blocks until a frame
	// arrives or the transport is closed, in which case ErrClosed is
	// returned.
	Poll(timeout time.Duration) (*Frame, error)
	Connected() bool
	Close() error
}

// TransportConfig carries the connection parameters handed to a driver
// constructor. Vendor specific settings stay inside the drivers.
type TransportConfig struct {
	// Port is the serial device or host:port of a network gateway
	Port         string
	PortBaudrate int
	Debug        bool
	OnMessage    func(string)
	OnError      func(error)
}

func (cfg *TransportConfig) Defaults() {
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(msg string) {
			log.Println(msg)
		}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(err error) {
			log.Println(err)
		}
	}
}
