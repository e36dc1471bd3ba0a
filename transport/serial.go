package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/roffe/godali"
	"go.bug.st/serial"
)

const (
	SerialName = "serial"
	// DefaultBaudrate of the SevenLab dongle
	DefaultBaudrate = 500000
)

func init() {
	if err := Register(&Info{
		Name:               SerialName,
		Description:        "SevenLab USB/serial dongle",
		RequiresSerialPort: true,
		New: func(cfg *godali.TransportConfig) (godali.Transport, error) {
			return NewSerial(cfg)
		},
	}); err != nil {
		panic(err)
	}
}

type Serial struct {
	Base
	port      serial.Port
	portMu    sync.Mutex
	connected atomic.Bool
}

func NewSerial(cfg *godali.TransportConfig) (*Serial, error) {
	if cfg == nil {
		cfg = &godali.TransportConfig{}
	}
	cfg.Defaults()
	if cfg.Port == "" {
		return nil, errors.New("serial transport requires a port")
	}
	if cfg.PortBaudrate == 0 {
		cfg.PortBaudrate = DefaultBaudrate
	}
	return &Serial{
		Base: NewBase(SerialName, cfg),
	}, nil
}

func (s *Serial) Open(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: s.cfg.PortBaudrate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	err := retry.Do(func() error {
		p, err := serial.Open(s.cfg.Port, mode)
		if err != nil {
			return err
		}
		s.port = p
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.OnRetry(func(n uint, err error) {
			s.cfg.OnMessage(fmt.Sprintf("retry #%d opening %s: %v", n, s.cfg.Port, err))
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("failed to open com port %q : %w", s.cfg.Port, err)
	}
	s.port.SetReadTimeout(200 * time.Millisecond)
	s.port.ResetInputBuffer()
	s.port.ResetOutputBuffer()
	s.connected.Store(true)

	go s.recvManager()
	return nil
}

func (s *Serial) Send(f *godali.Frame) error {
	if f.Length > maxBitLength {
		return fmt.Errorf("%w: %d bits", godali.ErrEncodingUnsupported, f.Length)
	}
	if !s.Connected() {
		return godali.ErrLinkDown
	}
	cmd := commandString(f, f.Type == godali.Query)
	if s.cfg.Debug {
		s.cfg.OnMessage("serial -> " + cmd)
	}
	s.portMu.Lock()
	defer s.portMu.Unlock()
	if _, err := s.port.Write([]byte(cmd)); err != nil {
		s.connected.Store(false)
		return fmt.Errorf("%w: %v", godali.ErrLinkDown, err)
	}
	return nil
}

func (s *Serial) Connected() bool {
	return s.connected.Load() && !s.Closed()
}

func (s *Serial) Close() error {
	s.connected.Store(false)
	s.Base.Close()
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

func (s *Serial) recvManager() {
	buff := bytes.NewBuffer(nil)
	readBuffer := make([]byte, 32)
	for {
		if s.Closed() {
			return
		}
		n, err := s.port.Read(readBuffer)
		if err != nil {
			if !s.Closed() {
				s.SetError(fmt.Errorf("failed to read com port: %w", err))
				s.connected.Store(false)
				s.Base.Close()
			}
			return
		}
		if n == 0 {
			// read timeout keeps the close check responsive
			continue
		}
		feedLines(buff, readBuffer[:n], s.handleLine)
	}
}

func (s *Serial) handleLine(line string) {
	if s.cfg.Debug {
		s.cfg.OnMessage("serial <- " + line)
	}
	frame, event, err := parseLine(line)
	if err != nil {
		s.SetError(err)
		return
	}
	switch event {
	case eventFailure:
		// bus power is gone, the dongle reports recovery on its own
		s.connected.Store(false)
		s.SetError(godali.ErrLinkDown)
	case eventRecover:
		s.connected.Store(true)
		s.cfg.OnMessage("bus recovered")
	case eventFrame:
		s.deliver(frame)
	}
}
