package transport

import (
	"sync"
	"time"

	"github.com/roffe/godali"
)

// Base carries the channel plumbing shared by all drivers: a buffered
// inbound channel the read loop delivers into and Poll consumes from,
// an error channel and a close latch.
type Base struct {
	name  string
	cfg   *godali.TransportConfig
	recv  chan *godali.Frame
	err   chan error
	close chan struct{}
	once  sync.Once
}

func NewBase(name string, cfg *godali.TransportConfig) Base {
	return Base{
		name:  name,
		cfg:   cfg,
		recv:  make(chan *godali.Frame, 64),
		err:   make(chan error, 10),
		close: make(chan struct{}),
	}
}

func (base *Base) Name() string {
	return base.name
}

func (base *Base) Poll(timeout time.Duration) (*godali.Frame, error) {
	if timeout < 0 {
		select {
		case f := <-base.recv:
			return f, nil
		case <-base.close:
			return nil, godali.ErrClosed
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-base.recv:
		return f, nil
	case <-timer.C:
		return nil, nil
	case <-base.close:
		return nil, godali.ErrClosed
	}
}

func (base *Base) Err() <-chan error {
	return base.err
}

// deliver hands a frame to Poll without ever blocking the read loop
func (base *Base) deliver(f *godali.Frame) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	select {
	case base.recv <- f:
	default:
		base.SetError(godali.ErrDroppedFrame)
	}
}

func (base *Base) SetError(err error) {
	select {
	case base.err <- err:
	default:
		base.cfg.OnError(err)
	}
}

func (base *Base) Close() {
	base.once.Do(func() {
		close(base.close)
	})
}

func (base *Base) Closed() bool {
	select {
	case <-base.close:
		return true
	default:
		return false
	}
}
