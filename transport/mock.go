package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roffe/godali"
)

const MockName = "mock"

func init() {
	if err := Register(&Info{
		Name:               MockName,
		Description:        "loopback transport replaying scripted replies, no hardware",
		RequiresSerialPort: false,
		New: func(cfg *godali.TransportConfig) (godali.Transport, error) {
			return NewMock(cfg)
		},
	}); err != nil {
		panic(err)
	}
}

// ScriptedReply is one canned answer the mock plays when a query frame is
// transmitted. Delay postpones delivery past Send, a nil Reply consumes a
// query silently to provoke timeouts.
type ScriptedReply struct {
	Reply *godali.Frame
	Delay time.Duration
}

// Mock is the deterministic driver the correlator is validated against.
// Every transmission is echoed back as a loopback frame, queries consume
// scripted replies in order and Inject simulates spontaneous bus traffic.
type Mock struct {
	Base
	mu         sync.Mutex
	script     []ScriptedReply
	sendErr    error
	dropEchoes bool
	connected  atomic.Bool
}

func NewMock(cfg *godali.TransportConfig) (*Mock, error) {
	if cfg == nil {
		cfg = &godali.TransportConfig{}
	}
	cfg.Defaults()
	return &Mock{
		Base: NewBase(MockName, cfg),
	}, nil
}

func (m *Mock) Open(ctx context.Context) error {
	m.connected.Store(true)
	return nil
}

func (m *Mock) Send(f *godali.Frame) error {
	if f.Length > maxBitLength {
		return godali.ErrEncodingUnsupported
	}
	m.mu.Lock()
	sendErr := m.sendErr
	dropEchoes := m.dropEchoes
	m.mu.Unlock()
	if sendErr != nil {
		return sendErr
	}
	if !m.Connected() {
		return godali.ErrLinkDown
	}

	echoes := 1
	if f.SendTwice {
		echoes = 2
	}
	if dropEchoes {
		echoes = 0
	}
	for i := 0; i < echoes; i++ {
		echo := *f
		echo.Echo = true
		echo.Status = godali.OK
		echo.Message = "LOOPBACK"
		echo.Timestamp = time.Now()
		m.deliver(&echo)
	}

	if f.Type == godali.Query {
		m.mu.Lock()
		var next *ScriptedReply
		if len(m.script) > 0 {
			entry := m.script[0]
			m.script = m.script[1:]
			next = &entry
		}
		m.mu.Unlock()
		if next != nil && next.Reply != nil {
			reply := *next.Reply
			reply.Type = godali.Incoming
			if next.Delay > 0 {
				time.AfterFunc(next.Delay, func() {
					m.Inject(&reply)
				})
			} else {
				m.Inject(&reply)
			}
		}
	}
	return nil
}

// Inject delivers a frame as if it arrived from the bus. A frame still
// carrying the NotSent construction status is finalized to OK the way real
// hardware reports a clean reception, explicitly set Collision and
// FramingError statuses pass through untouched.
func (m *Mock) Inject(f *godali.Frame) {
	in := *f
	in.Type = godali.Incoming
	if in.Status == godali.NotSent {
		in.Status = godali.OK
		in.Message = "OK"
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	m.deliver(&in)
}

// Script appends canned query replies, consumed in order
func (m *Mock) Script(entries ...ScriptedReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, entries...)
}

// DropEchoes withholds the loopback of every following transmission,
// simulating a dongle that never confirms the send
func (m *Mock) DropEchoes(drop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropEchoes = drop
}

// FailSendsWith makes every following Send return err, nil restores
func (m *Mock) FailSendsWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetConnected toggles the simulated link state
func (m *Mock) SetConnected(up bool) {
	m.connected.Store(up)
}

func (m *Mock) Connected() bool {
	return m.connected.Load() && !m.Closed()
}

func (m *Mock) Close() error {
	m.connected.Store(false)
	m.Base.Close()
	return nil
}
