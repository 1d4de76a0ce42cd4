package pyservice

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// nopCloser lets an in-memory buffer stand in for the process stdin.
type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error { return nil }

// newPiped returns a started service wired to in-memory pipes.
func newPiped(reply string) (*Service, *bytes.Buffer) {
	stdin := &bytes.Buffer{}
	s := &Service{
		config:  Config{Name: "test", IdleTimeout: DefaultIdleTimeout},
		stdin:   nopCloser{stdin},
		stdout:  bufio.NewReader(strings.NewReader(reply)),
		started: true,
	}
	return s, stdin
}

func TestCall_Protocol(t *testing.T) {
	s, sent := newPiped(`{"boxes":[{"bbox":[1,2,3,4],"confidence":0.9}]}` + "\n")
	defer s.Close()

	var out struct {
		Boxes []struct {
			BBox       []int   `json:"bbox"`
			Confidence float64 `json:"confidence"`
		} `json:"boxes"`
	}
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := s.Call(payload, &out); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	raw := sent.Bytes()
	if len(raw) != 4+len(payload) {
		t.Fatalf("sent %d bytes, want %d", len(raw), 4+len(payload))
	}
	if n := binary.BigEndian.Uint32(raw[:4]); n != uint32(len(payload)) {
		t.Errorf("length prefix = %d, want %d", n, len(payload))
	}
	if !bytes.Equal(raw[4:], payload) {
		t.Errorf("payload = %x, want %x", raw[4:], payload)
	}

	if len(out.Boxes) != 1 || out.Boxes[0].Confidence != 0.9 || out.Boxes[0].BBox[3] != 4 {
		t.Errorf("decoded = %+v", out)
	}
}

func TestCall_Errors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"service error", `{"error":"model not loaded"}` + "\n", "model not loaded"},
		{"malformed", "not json\n", "parse response"},
		{"closed stream", "", "read response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newPiped(tt.reply)
			var out map[string]any
			err := s.Call([]byte("x"), &out)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Call() error = %v, want containing %q", err, tt.want)
			}
			if s.started {
				t.Error("service should be reset after a failed request")
			}
		})
	}
}

func TestCall_AfterClose(t *testing.T) {
	s, sent := newPiped(`{"boxes":[]}` + "\n")
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var out map[string]any
	if err := s.Call([]byte("x"), &out); !errors.Is(err, ErrClosed) {
		t.Fatalf("Call() after Close error = %v, want ErrClosed", err)
	}
	if s.started || s.cmd != nil {
		t.Error("Call() after Close relaunched the service")
	}
	if sent.Len() != 0 {
		t.Errorf("Call() after Close wrote %d bytes", sent.Len())
	}
}

func TestNew_MissingScript(t *testing.T) {
	_, err := New(Config{Script: filepath.Join(t.TempDir(), "nope.py")})
	if !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("New() error = %v, want ErrScriptNotFound", err)
	}
}

func TestFindScript(t *testing.T) {
	script := filepath.Join(t.TempDir(), "svc.py")
	if err := os.WriteFile(script, []byte("print()"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := FindScript(script); got != script {
		t.Errorf("FindScript(abs) = %q, want %q", got, script)
	}
	if got := FindScript(""); got != "" {
		t.Errorf("FindScript(\"\") = %q, want empty", got)
	}

	s, err := New(Config{Script: script})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.config.Name != "svc.py" || s.config.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("defaults not applied: %+v", s.config)
	}
}
