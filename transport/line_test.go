package transport

import (
	"bytes"
	"strings"
	"testing"

	"github.com/roffe/godali"
)

func TestCommandString(t *testing.T) {
	tests := []struct {
		name    string
		frame   godali.Frame
		isQuery bool
		want    string
	}{
		{
			name:  "backward",
			frame: godali.Frame{Data: 0xFF, Length: 8},
			want:  "YFF\r",
		},
		{
			name:  "forward",
			frame: godali.Frame{Data: 0xFF08, Length: 16, Priority: 2},
			want:  "S2 10 FF08\r",
		},
		{
			name:    "query",
			frame:   godali.Frame{Data: 0xFF90, Length: 16, Priority: 2},
			isQuery: true,
			want:    "Q2 10 FF90\r",
		},
		{
			name:  "send twice",
			frame: godali.Frame{Data: 0xA120, Length: 16, Priority: 1, SendTwice: true},
			want:  "S1 10+A120\r",
		},
		{
			name:  "input device frame",
			frame: godali.Frame{Data: 0x010203, Length: 24, Priority: 2},
			want:  "S2 18 10203\r",
		},
		{
			name:  "firmware frame",
			frame: godali.Frame{Data: 0x1FFFF, Length: 17, Priority: 2},
			want:  "S2 11 1FFFF\r",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandString(&tt.frame, tt.isQuery); got != tt.want {
				t.Errorf("commandString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantEvent  lineEvent
		wantErr    bool
		wantStatus godali.Status
		wantLength uint8
		wantData   uint32
		wantEcho   bool
	}{
		{
			name:       "forward frame",
			line:       "{0000ABCD:10 0000FF08}",
			wantEvent:  eventFrame,
			wantStatus: godali.OK,
			wantLength: 16,
			wantData:   0xFF08,
		},
		{
			name:       "backward frame",
			line:       "{0000ABCD:08 000000FF}",
			wantEvent:  eventFrame,
			wantStatus: godali.OK,
			wantLength: 8,
			wantData:   0xFF,
		},
		{
			name:       "loopback",
			line:       "{0000ABCD>10 0000FF08}",
			wantEvent:  eventFrame,
			wantStatus: godali.OK,
			wantLength: 16,
			wantData:   0xFF08,
			wantEcho:   true,
		},
		{
			name:      "reply window timeout",
			line:      "{0000ABCD:81 00000000}",
			wantEvent: eventNone,
		},
		{
			name:       "collision",
			line:       "{0000ABCD:85 00000000}",
			wantEvent:  eventFrame,
			wantStatus: godali.Collision,
		},
		{
			name:       "bad start bit timing",
			line:       "{0000ABCD:82 00012303}",
			wantEvent:  eventFrame,
			wantStatus: godali.FramingError,
		},
		{
			name:      "system failure",
			line:      "{0000ABCD:91 00000000}",
			wantEvent: eventFailure,
		},
		{
			name:      "system recovered",
			line:      "{0000ABCD:92 00000000}",
			wantEvent: eventRecover,
		},
		{
			name:    "interface error",
			line:    "{0000ABCD:A2 00000000}",
			wantErr: true,
		},
		{
			name:    "no braces",
			line:    "garbage",
			wantErr: true,
		},
		{
			name:    "short payload",
			line:    "{0000ABCD:10}",
			wantErr: true,
		},
		{
			name:    "bad hex",
			line:    "{0000ABCD:ZZ 0000FF08}",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, event, err := parseLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if event != tt.wantEvent {
				t.Errorf("event = %v, want %v", event, tt.wantEvent)
			}
			if tt.wantEvent != eventFrame {
				if frame != nil {
					t.Errorf("frame = %v, want nil", frame)
				}
				return
			}
			if frame == nil {
				t.Fatal("frame = nil, want frame")
			}
			if frame.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", frame.Status, tt.wantStatus)
			}
			if frame.Length != tt.wantLength {
				t.Errorf("Length = %d, want %d", frame.Length, tt.wantLength)
			}
			if frame.Data != tt.wantData {
				t.Errorf("Data = 0x%X, want 0x%X", frame.Data, tt.wantData)
			}
			if frame.Echo != tt.wantEcho {
				t.Errorf("Echo = %v, want %v", frame.Echo, tt.wantEcho)
			}
		})
	}
}

func TestParseLineTimingMessage(t *testing.T) {
	// data encodes bit number in the low byte, timer usec above it
	frame, _, err := parseLine("{0000ABCD:83 00012303}")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(frame.Message, "data") || !strings.Contains(frame.Message, "bit 3") {
		t.Errorf("timing message = %q", frame.Message)
	}
}

func TestFeedLines(t *testing.T) {
	var lines []string
	handle := func(line string) { lines = append(lines, line) }
	buff := bytes.NewBuffer(nil)

	// lines split across arbitrary chunks, CR and LF both terminate
	feedLines(buff, []byte("{0000"), handle)
	feedLines(buff, []byte("ABCD:10 0000FF08}\r\n{00"), handle)
	feedLines(buff, []byte("00ABCE:08 000000FF}\r"), handle)

	want := []string{"{0000ABCD:10 0000FF08}", "{0000ABCE:08 000000FF}"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
