package wire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// maxFrameSize bounds a single inbound frame.
	maxFrameSize = 8 * 1024 * 1024

	connectInitialInterval = 100 * time.Millisecond
	connectMaxElapsedTime  = 10 * time.Second
)

// StdioTransport spawns the backend as a subprocess and exchanges
// newline-delimited JSON frames over its stdin/stdout. Stderr is drained
// into the logger.
type StdioTransport struct {
	command []string
	logger  zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	msgs   chan []byte
	closed bool
}

// NewStdioTransport creates a transport that will run the given command.
func NewStdioTransport(command []string, logger zerolog.Logger) *StdioTransport {
	return &StdioTransport{
		command: command,
		logger:  logger,
		msgs:    make(chan []byte, 64),
	}
}

// Connect starts the subprocess, retrying transient spawn failures with
// exponential backoff and jitter.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if len(t.command) == 0 {
		return fmt.Errorf("stdio transport: empty command")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = connectInitialInterval
	b.MaxElapsedTime = connectMaxElapsedTime
	b.RandomizationFactor = 0.5

	return backoff.Retry(func() error {
		return t.spawn(ctx)
	}, backoff.WithContext(b, ctx))
}

func (t *StdioTransport) spawn(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return backoff.Permanent(ErrTransportClosed)
	}

	cmd := exec.CommandContext(ctx, t.command[0], t.command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start backend: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin

	go t.readLoop(stdout)
	go t.drainStderr(stderr)

	t.logger.Debug().Str("command", t.command[0]).Int("pid", cmd.Process.Pid).Msg("backend process started")
	return nil
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		t.msgs <- frame
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn().Err(err).Msg("backend stdout closed with error")
	}
	close(t.msgs)
}

func (t *StdioTransport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.logger.Debug().Str("stream", "backend-stderr").Msg(scanner.Text())
	}
}

// Send writes one frame followed by a newline.
func (t *StdioTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.stdin == nil {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := t.stdin.Write(append(frame, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Messages yields inbound frames.
func (t *StdioTransport) Messages() <-chan []byte { return t.msgs }

// Close terminates the subprocess. The process is killed if it does not
// exit after stdin closes.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		done := make(chan struct{})
		go func() {
			t.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.cmd.Process.Kill()
		}
	}
	return nil
}
