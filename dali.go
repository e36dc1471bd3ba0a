package godali

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultQueueSize is the inbound queue capacity
	DefaultQueueSize = 40
	// DefaultReplyWindow is the protocol settle window a query reply must
	// arrive within
	DefaultReplyWindow = 1 * time.Second
	// DefaultSendWindow bounds the wait for the transmission loopback in
	// blocking sends
	DefaultSendWindow = 1 * time.Second

	pollInterval = 200 * time.Millisecond
)

// QueryPolicy selects how overlapping queries are handled. The bus is half
// duplex, only one query can be outstanding at a time.
type QueryPolicy int

const (
	// QuerySerialize blocks a second query until the outstanding one
	// resolves, matching the exclusive nature of bus access
	QuerySerialize QueryPolicy = iota
	// QueryFailFast rejects a second query with ErrBusBusy
	QueryFailFast
)

type Opts func(c *Client) error

func WithQueueSize(size int) Opts {
	return func(c *Client) error {
		if size < 1 {
			return fmt.Errorf("%w: queue size %d", ErrInvalidArgument, size)
		}
		c.queueSize = size
		return nil
	}
}

func WithReplyWindow(d time.Duration) Opts {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("%w: reply window %v", ErrInvalidArgument, d)
		}
		c.replyWindow = d
		return nil
	}
}

func WithSendWindow(d time.Duration) Opts {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("%w: send window %v", ErrInvalidArgument, d)
		}
		c.sendWindow = d
		return nil
	}
}

func WithQueryPolicy(p QueryPolicy) Opts {
	return func(c *Client) error {
		c.policy = p
		return nil
	}
}

// pendingQuery is the single slot reservation for the next backward frame.
// DALI has no request identifiers, correlation is purely next backward
// frame wins, so holding the slot equals owning the bus.
type pendingQuery struct {
	request *Frame
	reply   chan *Frame // buffered, filled at most once
	// detached queries were armed by TransmitQuery, their reply is routed
	// to the inbound queue for a later Get instead of a blocked caller
	detached bool
	expire   *time.Timer
}

// Client is the public face of one DALI bus. It owns the inbound queue and
// the pending query slot and drives both from a background pump reading
// the transport.
type Client struct {
	transport Transport
	in        *Queue

	queueSize   int
	replyWindow time.Duration
	sendWindow  time.Duration
	policy      QueryPolicy

	mu      sync.Mutex // guards pending and txWait
	pending *pendingQuery
	txWait  chan *Frame

	// busTok is the bus ownership token, held for the lifetime of every
	// pending query. Channel based so it can be released from the pump.
	busTok chan struct{}

	sent      atomic.Uint64
	received  atomic.Uint64
	errCount  atomic.Uint64
	connected atomic.Bool
	close     chan struct{}
	closeOnce sync.Once
}

// New opens the transport and starts the receive pump. The transport is
// owned by the caller but must not be shared with another client.
func New(ctx context.Context, transport Transport, opts ...Opts) (*Client, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	c := &Client{
		transport:   transport,
		queueSize:   DefaultQueueSize,
		replyWindow: DefaultReplyWindow,
		sendWindow:  DefaultSendWindow,
		busTok:      make(chan struct{}, 1),
		close:       make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.in = NewQueue(c.queueSize)
	if err := transport.Open(ctx); err != nil {
		return nil, err
	}
	c.connected.Store(true)
	go c.recvManager(ctx)
	return c, nil
}

// Connected reports whether the link to the bus hardware is up
func (c *Client) Connected() bool {
	return c.connected.Load() && c.transport.Connected()
}

// Close stops the pump, closes the transport and wakes every blocked Get
// and QueryReply caller with a terminal frame.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.close)
		c.in.Close()
		err = c.transport.Close()
	})
	return err
}

func (c *Client) closed() bool {
	select {
	case <-c.close:
		return true
	default:
		return false
	}
}

// Transmit sends a frame without waiting for the transmission to complete
func (c *Client) Transmit(frame *Frame) error {
	return c.transmit(frame, false, false)
}

// TransmitBlock sends a frame and waits for the driver loopback confirming
// the bus accepted it. This is send completion, not a reply.
func (c *Client) TransmitBlock(frame *Frame) error {
	return c.transmit(frame, true, false)
}

// TransmitQuery sends a frame and arms the reply window without waiting
// for the reply, which is routed to the inbound queue for a later Get.
// Fails with ErrInvalidArgument when a query is already outstanding.
func (c *Client) TransmitQuery(frame *Frame) error {
	return c.transmit(frame, false, true)
}

func (c *Client) transmit(frame *Frame, block, isQuery bool) error {
	if frame == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidArgument)
	}
	if !LegalLength(frame.Length) {
		return fmt.Errorf("%w: %d bits", ErrInvalidFrameLength, frame.Length)
	}
	if c.closed() {
		return ErrClosed
	}

	var pq *pendingQuery
	if isQuery {
		select {
		case c.busTok <- struct{}{}:
		default:
			return fmt.Errorf("%w: query already outstanding", ErrInvalidArgument)
		}
		pq = &pendingQuery{
			request:  frame,
			reply:    make(chan *Frame, 1),
			detached: true,
		}
		pq.expire = time.AfterFunc(c.replyWindow, func() {
			c.clearPending(pq)
		})
		c.mu.Lock()
		c.pending = pq
		c.mu.Unlock()
	}

	var wait chan *Frame
	if block {
		wait = make(chan *Frame, 2)
		c.mu.Lock()
		if c.txWait != nil {
			c.mu.Unlock()
			return fmt.Errorf("%w: blocking transmit already in progress", ErrBusBusy)
		}
		c.txWait = wait
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			c.txWait = nil
			c.mu.Unlock()
		}()
	}

	if err := c.send(frame, isQuery); err != nil {
		if pq != nil {
			pq.expire.Stop()
			c.clearPending(pq)
		}
		return err
	}

	if block {
		want := 1
		if frame.SendTwice {
			want = 2
		}
		timer := time.NewTimer(c.sendWindow)
		defer timer.Stop()
		for want > 0 {
			select {
			case <-wait:
				want--
			case <-timer.C:
				return ErrSendTimeout
			case <-c.close:
				return ErrClosed
			}
		}
	}
	return nil
}

func (c *Client) send(frame *Frame, isQuery bool) error {
	wire := *frame
	wire.Type = Outgoing
	if isQuery {
		wire.Type = Query
	}
	if wire.Priority == 0 || wire.Priority > MaxPriority {
		wire.Priority = DefaultPriority
	}
	if err := c.transport.Send(&wire); err != nil {
		c.errCount.Add(1)
		return err
	}
	c.sent.Add(1)
	return nil
}

// Get returns the next unclaimed frame from the bus, waiting up to timeout
// (negative waits forever). An expired wait is data, not an error: the
// returned frame carries Status Timeout.
func (c *Client) Get(timeout time.Duration) *Frame {
	if f := c.in.Pop(timeout); f != nil {
		return f
	}
	msg := "queue is empty, timeout from get"
	if c.closed() {
		msg = "interface closed"
	}
	return &Frame{
		Type:      Incoming,
		Status:    Timeout,
		Message:   msg,
		Timestamp: time.Now(),
	}
}

// Flush discards all frames waiting in the inbound queue
func (c *Client) Flush() {
	c.in.Flush()
}

// QueryReply transmits the request with the reply window armed and waits
// for the backward frame answering it. Bus silence is an expected outcome
// and comes back as a frame with Status Timeout echoing the request
// payload, not as an error. Errors are reserved for misuse and transport
// faults. With QueryFailFast a second overlapping call fails with
// ErrBusBusy, with QuerySerialize it waits its turn.
func (c *Client) QueryReply(request *Frame) (*Frame, error) {
	if request == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidArgument)
	}
	if !LegalLength(request.Length) {
		return nil, fmt.Errorf("%w: %d bits", ErrInvalidFrameLength, request.Length)
	}
	if c.closed() {
		return nil, ErrClosed
	}
	if err := c.acquireBus(); err != nil {
		return nil, err
	}

	pq := &pendingQuery{
		request: request,
		reply:   make(chan *Frame, 1),
	}
	c.mu.Lock()
	c.pending = pq
	c.mu.Unlock()

	if err := c.send(request, true); err != nil {
		c.clearPending(pq)
		return nil, err
	}

	timer := time.NewTimer(c.replyWindow)
	defer timer.Stop()
	select {
	case reply := <-pq.reply:
		c.releaseBus()
		return reply, nil
	case <-timer.C:
		c.mu.Lock()
		if c.pending == pq {
			c.pending = nil
		}
		c.mu.Unlock()
		// the pump may have filled the slot while the timer fired
		select {
		case reply := <-pq.reply:
			c.releaseBus()
			return reply, nil
		default:
		}
		c.releaseBus()
		return c.timeoutFrame(request, "no reply within window"), nil
	case <-c.close:
		c.mu.Lock()
		if c.pending == pq {
			c.pending = nil
		}
		c.mu.Unlock()
		c.releaseBus()
		return c.timeoutFrame(request, "interface closed"), nil
	}
}

func (c *Client) timeoutFrame(request *Frame, msg string) *Frame {
	return &Frame{
		Data:      request.Data,
		Length:    request.Length,
		Type:      request.Type,
		Priority:  request.Priority,
		SendTwice: request.SendTwice,
		Status:    Timeout,
		Message:   msg,
		Timestamp: time.Now(),
	}
}

func (c *Client) acquireBus() error {
	select {
	case c.busTok <- struct{}{}:
		return nil
	default:
	}
	if c.policy == QueryFailFast {
		return ErrBusBusy
	}
	select {
	case c.busTok <- struct{}{}:
		return nil
	case <-c.close:
		return ErrClosed
	}
}

func (c *Client) releaseBus() {
	select {
	case <-c.busTok:
	default:
	}
}

// clearPending drops pq if it still owns the slot and releases the bus.
// Used by detached query expiry and failed sends, both of which own the
// token the slot was armed with.
func (c *Client) clearPending(pq *pendingQuery) {
	c.mu.Lock()
	if c.pending != pq {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()
	c.releaseBus()
}

// recvManager continuously drains the transport. It never crashes the
// process on a read error: transient faults are counted and logged, a dead
// transport marks the client disconnected and wakes every waiter.
func (c *Client) recvManager(ctx context.Context) {
	for {
		select {
		case <-c.close:
			return
		case <-ctx.Done():
			c.Close()
			return
		default:
		}
		frame, err := c.transport.Poll(pollInterval)
		if err != nil {
			if errors.Is(err, ErrClosed) || !c.transport.Connected() {
				c.connected.Store(false)
				c.Close()
				return
			}
			c.errCount.Add(1)
			log.Println("transport read error:", err)
			continue
		}
		if frame == nil {
			continue
		}
		c.received.Add(1)
		c.route(frame)
	}
}

// route gives the pending query first right of refusal on every backward
// frame, hands echo frames to a blocked transmitter and queues the rest.
func (c *Client) route(f *Frame) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	if f.Echo {
		c.mu.Lock()
		wait := c.txWait
		c.mu.Unlock()
		if wait != nil {
			select {
			case wait <- f:
			default:
			}
		}
		return
	}

	c.mu.Lock()
	pq := c.pending
	if pq != nil && f.IsBackward() {
		c.pending = nil
		if !pq.detached {
			// fill the slot before dropping the lock so a caller racing
			// its own deadline can still find the claimed reply
			pq.reply <- f
		}
		c.mu.Unlock()
		if pq.expire != nil {
			pq.expire.Stop()
		}
		if pq.detached {
			c.in.Push(f)
			c.releaseBus()
		}
		return
	}
	c.mu.Unlock()
	c.in.Push(f)
}
