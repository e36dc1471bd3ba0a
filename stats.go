package godali

import "fmt"

type Stats struct {
	SentFrames     uint64
	ReceivedFrames uint64
	DroppedFrames  uint64
	Errors         uint64
}

func (st *Stats) String() string {
	return fmt.Sprintf("sent: %d recv: %d dropped: %d errors: %d", st.SentFrames, st.ReceivedFrames, st.DroppedFrames, st.Errors)
}

func (c *Client) Stats() Stats {
	return Stats{
		SentFrames:     c.sent.Load(),
		ReceivedFrames: c.received.Load(),
		DroppedFrames:  c.in.Drops(),
		Errors:         c.errCount.Load(),
	}
}
