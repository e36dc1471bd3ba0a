package godali

import (
	"sync"
	"sync/atomic"
	"time"
)

// Queue is the bounded inbound buffer for frames that were not claimed as a
// query reply. Push never blocks, a full queue loses its oldest frame. Bus
// traffic is real time, a slow consumer loses history and must not stall
// the reader.
type Queue struct {
	mu     sync.Mutex
	frames chan *Frame
	drops  atomic.Uint64
	close  chan struct{}
	once   sync.Once
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		frames: make(chan *Frame, capacity),
		close:  make(chan struct{}),
	}
}

// Push appends the frame, evicting the oldest one first when full
func (q *Queue) Push(f *Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		select {
		case q.frames <- f:
			return
		default:
		}
		select {
		case <-q.frames:
			q.drops.Add(1)
		default:
		}
	}
}

// Pop removes and returns the oldest frame, waiting up to timeout for one
// to appear. A negative timeout waits forever. Returns nil when the wait
// expires or the queue is closed.
func (q *Queue) Pop(timeout time.Duration) *Frame {
	// drain queued frames before honoring close or timeout
	select {
	case f := <-q.frames:
		return f
	default:
	}
	if timeout < 0 {
		select {
		case f := <-q.frames:
			return f
		case <-q.close:
			return nil
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-q.frames:
		return f
	case <-timer.C:
		return nil
	case <-q.close:
		return nil
	}
}

// Flush discards all queued frames
func (q *Queue) Flush() {
	for {
		select {
		case <-q.frames:
		default:
			return
		}
	}
}

func (q *Queue) Len() int {
	return len(q.frames)
}

// Drops returns the number of frames lost to overflow eviction
func (q *Queue) Drops() uint64 {
	return q.drops.Load()
}

// Close wakes every blocked Pop. Already queued frames stay readable
// through a final non blocking Pop.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.close)
	})
}

func (q *Queue) Closed() bool {
	select {
	case <-q.close:
		return true
	default:
		return false
	}
}
