// Package pyservice talks to a Python model process over its stdin/stdout.
//
// Each request is a 4-byte big-endian length followed by JPEG bytes. The
// process answers with one line of JSON. A response carrying a non-empty
// "error" field is reported as a failure of that request.
package pyservice

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DefaultIdleTimeout is how long an unused process is kept alive.
const DefaultIdleTimeout = 30 * time.Second

// ErrScriptNotFound is returned when the service script cannot be located.
var ErrScriptNotFound = errors.New("service script not found")

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("model service closed")

// Config describes how to launch a service process.
type Config struct {
	// Name is used in logs.
	Name string
	// Script is the Python file to run, resolved with FindScript.
	Script string
	// Args are passed to the script.
	Args []string
	// IdleTimeout stops the process after this long without requests.
	IdleTimeout time.Duration
}

// Service is a lazily started Python process. Requests are serialized.
type Service struct {
	config     Config
	scriptPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	closed     bool
	idleTimer  *time.Timer
}

type errorResponse struct {
	Error string `json:"error"`
}

// New locates the script and prepares a service. The process is started on
// the first request.
func New(config Config) (*Service, error) {
	scriptPath := FindScript(config.Script)
	if scriptPath == "" {
		return nil, fmt.Errorf("%s: %w", config.Script, ErrScriptNotFound)
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.Name == "" {
		config.Name = filepath.Base(scriptPath)
	}

	return &Service{
		config:     config,
		scriptPath: scriptPath,
	}, nil
}

// CallImage encodes img as JPEG and decodes the reply into out.
func (s *Service) CallImage(img *gocv.Mat, out any) error {
	if img == nil || img.Empty() {
		return errors.New("empty image")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	defer buf.Close()

	return s.Call(buf.GetBytes(), out)
}

// Call sends one payload and decodes the JSON reply into out.
func (s *Service) Call(data []byte, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.ensureStarted(); err != nil {
		return err
	}

	if err := s.exchange(data, out); err != nil {
		// The stream may be out of sync; restart on the next request.
		slog.Warn("model service request failed, restarting", "service", s.config.Name, "error", err)
		s.shutdown()
		return err
	}

	s.resetIdleTimer()
	return nil
}

func (s *Service) exchange(data []byte, out any) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := s.stdin.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	line, err := s.stdout.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var status errorResponse
	if err := json.Unmarshal(line, &status); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if status.Error != "" {
		return fmt.Errorf("%s: %s", s.config.Name, status.Error)
	}

	if err := json.Unmarshal(line, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Close stops the process if it is running. The service cannot be used
// afterwards.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.shutdown()
}

func (s *Service) ensureStarted() error {
	if s.started {
		return nil
	}

	pythonPath := FindVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	args := append([]string{"-u", s.scriptPath}, s.config.Args...)
	s.cmd = exec.Command(pythonPath, args...)

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.config.Name, err)
	}

	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	s.started = true

	slog.Info("model service started", "service", s.config.Name, "python", pythonPath, "pid", s.cmd.Process.Pid)
	return nil
}

func (s *Service) shutdown() error {
	if !s.started {
		return nil
	}

	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if s.stdin != nil {
		s.stdin.Close()
	}

	var err error
	if s.cmd != nil {
		err = s.cmd.Wait()
	}
	s.started = false
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil

	slog.Debug("model service stopped", "service", s.config.Name)
	return err
}

func (s *Service) resetIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.config.IdleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.shutdown()
	})
}

// FindScript resolves a script path against the working directory, its
// parent, and the executable's directory.
func FindScript(script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		if fileExists(script) {
			return script
		}
		return ""
	}

	candidates := []string{
		script,
		filepath.Join("..", script),
	}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), script))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".facewatch", script))
	}

	return firstExisting(candidates)
}

// FindVenvPython looks for a Python interpreter in a virtual environment
// next to the working directory or the executable.
func FindVenvPython() string {
	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		".venv/bin/python",
	}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), "venv/bin/python"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".facewatch/venv/bin/python"))
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if fileExists(path) {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
