package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/roffe/godali"
	"golang.org/x/sync/errgroup"
)

const TCPName = "tcp"

func init() {
	if err := Register(&Info{
		Name:               TCPName,
		Description:        "network attached gateway speaking the dongle line protocol",
		RequiresSerialPort: false,
		New: func(cfg *godali.TransportConfig) (godali.Transport, error) {
			return NewTCP(cfg)
		},
	}); err != nil {
		panic(err)
	}
}

// TCP drives a network attached DALI gateway. Gateways expose the same
// line protocol as the serial dongle on a socket, so the codec is shared.
type TCP struct {
	Base
	conn      net.Conn
	writeMu   sync.Mutex
	connected atomic.Bool
	group     *errgroup.Group
}

func NewTCP(cfg *godali.TransportConfig) (*TCP, error) {
	if cfg == nil {
		cfg = &godali.TransportConfig{}
	}
	cfg.Defaults()
	if cfg.Port == "" {
		return nil, errors.New("tcp transport requires host:port")
	}
	if _, _, err := net.SplitHostPort(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid gateway address %q: %w", cfg.Port, err)
	}
	return &TCP{
		Base: NewBase(TCPName, cfg),
	}, nil
}

func (t *TCP) Open(ctx context.Context) error {
	d := net.Dialer{Timeout: 2 * time.Second}
	err := retry.Do(func() error {
		conn, err := d.DialContext(ctx, "tcp", t.cfg.Port)
		if err != nil {
			return err
		}
		t.conn = conn
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.OnRetry(func(n uint, err error) {
			t.cfg.OnMessage(fmt.Sprintf("retry #%d connecting to %s: %v", n, t.cfg.Port, err))
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("could not connect to gateway %q: %w", t.cfg.Port, err)
	}
	if tc, ok := t.conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	t.connected.Store(true)

	t.group, _ = errgroup.WithContext(ctx)
	t.group.Go(t.recvManager)
	go func() {
		if err := t.group.Wait(); err != nil && !t.Closed() {
			t.SetError(err)
			t.connected.Store(false)
			t.Base.Close()
		}
	}()
	return nil
}

func (t *TCP) Send(f *godali.Frame) error {
	if f.Length > maxBitLength {
		return fmt.Errorf("%w: %d bits", godali.ErrEncodingUnsupported, f.Length)
	}
	if !t.Connected() {
		return godali.ErrLinkDown
	}
	cmd := commandString(f, f.Type == godali.Query)
	if t.cfg.Debug {
		t.cfg.OnMessage("gateway -> " + cmd)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := t.conn.Write([]byte(cmd)); err != nil {
		t.connected.Store(false)
		return fmt.Errorf("%w: %v", godali.ErrLinkDown, err)
	}
	return nil
}

func (t *TCP) Connected() bool {
	return t.connected.Load() && !t.Closed()
}

func (t *TCP) Close() error {
	t.connected.Store(false)
	t.Base.Close()
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	if t.group != nil {
		t.group.Wait()
	}
	return err
}

func (t *TCP) recvManager() error {
	buff := bytes.NewBuffer(nil)
	readBuffer := make([]byte, 128)
	for {
		if t.Closed() {
			return nil
		}
		n, err := t.conn.Read(readBuffer)
		if err != nil {
			if t.Closed() {
				return nil
			}
			return fmt.Errorf("gateway read: %w", err)
		}
		if n == 0 {
			continue
		}
		feedLines(buff, readBuffer[:n], t.handleLine)
	}
}

func (t *TCP) handleLine(line string) {
	if t.cfg.Debug {
		t.cfg.OnMessage("gateway <- " + line)
	}
	frame, event, err := parseLine(line)
	if err != nil {
		t.SetError(err)
		return
	}
	switch event {
	case eventFailure:
		t.connected.Store(false)
		t.SetError(godali.ErrLinkDown)
	case eventRecover:
		t.connected.Store(true)
		t.cfg.OnMessage("bus recovered")
	case eventFrame:
		t.deliver(frame)
	}
}
