package transport

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/roffe/godali"
)

// fakeGateway accepts one connection, pushes canned lines and reports
// every command it reads back on the returned channel.
func fakeGateway(t *testing.T, lines []string) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	cmds := make(chan string, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for _, line := range lines {
			conn.Write([]byte(line + "\r"))
		}
		reader := bufio.NewReader(conn)
		for {
			cmd, err := reader.ReadString('\r')
			if err != nil {
				return
			}
			cmds <- cmd
		}
	}()
	return ln.Addr().String(), cmds
}

func TestTCPSendAndReceive(t *testing.T) {
	addr, cmds := fakeGateway(t, []string{"{0000ABCD:10 0000FF08}"})

	dev, err := NewTCP(&godali.TransportConfig{Port: addr})
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dev.Close() })

	frame, err := dev.Poll(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if frame == nil || frame.Data != 0xFF08 || frame.Length != 16 {
		t.Errorf("Poll() = %v, want 16 bits 0xFF08", frame)
	}

	if err := dev.Send(&godali.Frame{Data: 0xFF08, Length: 16, Priority: 2, Type: godali.Outgoing}); err != nil {
		t.Fatal(err)
	}
	select {
	case cmd := <-cmds:
		if cmd != "S2 10 FF08\r" {
			t.Errorf("gateway received %q, want %q", cmd, "S2 10 FF08\r")
		}
	case <-time.After(time.Second):
		t.Fatal("gateway never received the command")
	}

	if !dev.Connected() {
		t.Error("Connected() = false with the link up")
	}
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}
	if dev.Connected() {
		t.Error("Connected() = true after Close")
	}
}

func TestTCPOpenFailure(t *testing.T) {
	// a listener that is closed right away leaves nothing to connect to
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	dev, err := NewTCP(&godali.TransportConfig{Port: addr})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := dev.Open(ctx); err == nil {
		dev.Close()
		t.Fatal("Open() expected error with no gateway listening")
	}
}
