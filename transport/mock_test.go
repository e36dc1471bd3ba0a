package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roffe/godali"
)

func openMock(t *testing.T) *Mock {
	t.Helper()
	m, err := NewMock(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMockEchoesTransmissions(t *testing.T) {
	m := openMock(t)
	if err := m.Send(&godali.Frame{Data: 0xFF08, Length: 16, Type: godali.Outgoing}); err != nil {
		t.Fatal(err)
	}
	echo, err := m.Poll(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if echo == nil || !echo.Echo || echo.Data != 0xFF08 {
		t.Errorf("Poll() = %v, want echo of 0xFF08", echo)
	}
}

func TestMockScriptedReplies(t *testing.T) {
	m := openMock(t)
	m.Script(
		ScriptedReply{Reply: &godali.Frame{Data: 0x2A, Length: 8, Status: godali.OK}},
		ScriptedReply{Reply: &godali.Frame{Data: 0x55, Length: 8, Status: godali.OK}},
	)

	for _, want := range []uint32{0x2A, 0x55} {
		if err := m.Send(&godali.Frame{Data: 0xFF90, Length: 16, Type: godali.Query}); err != nil {
			t.Fatal(err)
		}
		echo, err := m.Poll(time.Second)
		if err != nil || echo == nil || !echo.Echo {
			t.Fatalf("expected echo first, got %v, %v", echo, err)
		}
		reply, err := m.Poll(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if reply == nil || reply.Echo || reply.Data != want {
			t.Errorf("Poll() = %v, want scripted reply 0x%X", reply, want)
		}
	}

	// script exhausted, a further query gets only its echo
	if err := m.Send(&godali.Frame{Data: 0xFF90, Length: 16, Type: godali.Query}); err != nil {
		t.Fatal(err)
	}
	m.Poll(time.Second) // echo
	if f, err := m.Poll(50 * time.Millisecond); err != nil || f != nil {
		t.Errorf("Poll() = %v, %v, want nil frame on silence", f, err)
	}
}

func TestMockInjectFinalizesStatus(t *testing.T) {
	m := openMock(t)

	// a frame fresh from the constructor carries NotSent, reception
	// finalizes it to OK
	built, err := godali.NewFrame(godali.LengthBackward, 0x2A)
	if err != nil {
		t.Fatal(err)
	}
	m.Inject(built)
	got, err := m.Poll(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Status != godali.OK {
		t.Errorf("Poll() = %v, want Status OK", got)
	}

	// explicitly injected fault statuses pass through untouched
	for _, status := range []godali.Status{godali.Collision, godali.FramingError} {
		m.Inject(&godali.Frame{Length: 16, Status: status})
		got, err := m.Poll(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.Status != status {
			t.Errorf("Poll() = %v, want Status %v", got, status)
		}
	}
}

func TestMockPollTimeout(t *testing.T) {
	m := openMock(t)
	start := time.Now()
	f, err := m.Poll(50 * time.Millisecond)
	if err != nil || f != nil {
		t.Fatalf("Poll() = %v, %v, want nil, nil", f, err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Poll returned after %v, want at least 50ms", elapsed)
	}
}

func TestMockPollAfterClose(t *testing.T) {
	m := openMock(t)
	m.Close()
	if _, err := m.Poll(time.Second); !errors.Is(err, godali.ErrClosed) {
		t.Errorf("Poll() after Close error = %v, want ErrClosed", err)
	}
	if m.Connected() {
		t.Error("Connected() = true after Close")
	}
}

func TestMockSendFailure(t *testing.T) {
	m := openMock(t)
	m.FailSendsWith(godali.ErrBusBusy)
	if err := m.Send(&godali.Frame{Data: 0xFF08, Length: 16}); !errors.Is(err, godali.ErrBusBusy) {
		t.Errorf("Send() error = %v, want ErrBusBusy", err)
	}
}

func TestRegistry(t *testing.T) {
	names := ListNames()
	for _, want := range []string{MockName, SerialName, TCPName} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("ListNames() = %v, missing %q", names, want)
		}
	}

	dev, err := New("mock", nil)
	if err != nil {
		t.Fatalf("New(mock) error: %v", err)
	}
	if dev.Name() != MockName {
		t.Errorf("Name() = %q, want %q", dev.Name(), MockName)
	}

	if _, err := New("bogus", nil); err == nil {
		t.Error("New(bogus) expected error")
	}

	if _, err := New("tcp", &godali.TransportConfig{Port: "not-an-address"}); err == nil {
		t.Error("New(tcp) with bad address expected error")
	}
}
