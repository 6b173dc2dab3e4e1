// Package procrun runs external commands for the panel: buffered runs for
// short commands, streaming spawns for interactive ones, and a
// single-flight guard for operations that must never overlap.
package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/metrics"
)

// Cmd describes one invocation. Env entries are appended to the
// inherited environment.
type Cmd struct {
	Name    string
	Args    []string
	Env     []string
	Dir     string
	Timeout time.Duration
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type Result struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Output returns stdout followed by stderr; cloudflared prints its
// diagnostics on either stream depending on the subcommand.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExitError is returned when a command cannot be spawned or exits
// non-zero. The captured output is kept for operator diagnostics.
type ExitError struct {
	Cmd string
	Result
	Err error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	if detail := strings.TrimSpace(e.Stderr); detail != "" {
		msg += ": " + detail
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// AsExitError returns the captured result of a failed command, if any.
func AsExitError(err error) (*ExitError, bool) {
	var ee *ExitError
	ok := errors.As(err, &ee)
	return ee, ok
}

// Runner spawns real OS processes.
type Runner struct{}

func New() *Runner { return &Runner{} }

func (c Cmd) build(ctx context.Context) *exec.Cmd {
	var cmd *exec.Cmd
	if ctx != nil {
		cmd = exec.CommandContext(ctx, c.Name, c.Args...)
	} else {
		cmd = exec.Command(c.Name, c.Args...)
	}
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd
}

// Run executes c to completion and returns its captured output. A
// non-zero exit yields an *ExitError carrying the same Result.
func (r *Runner) Run(ctx context.Context, c Cmd) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := c.build(ctx)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	metrics.CommandDuration.WithLabelValues(filepath.Base(c.Name), metrics.Result(err)).Observe(time.Since(start).Seconds())

	if err != nil {
		res.ExitCode = exitCode(err)
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s: %w", c.Timeout, err)
		}
		return res, &ExitError{Cmd: c.String(), Result: res, Err: err}
	}
	return res, nil
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// ChunkFunc receives output as it is produced, before the process exits.
// It is called from reader goroutines and must not block for long.
type ChunkFunc func(stream Stream, chunk string)

// Handle is a process started with Start.
type Handle struct {
	cmd  *exec.Cmd
	name string
	done chan struct{}

	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	result Result
	err    error
}

// Start spawns c without waiting for it. The process is not tied to any
// request context; it runs until it exits on its own or Kill is called.
func (r *Runner) Start(c Cmd, onChunk ChunkFunc) (*Handle, error) {
	cmd := c.build(nil)
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &ExitError{Cmd: c.String(), Result: Result{ExitCode: -1}, Err: err}
	}

	h := &Handle{cmd: cmd, name: c.String(), done: make(chan struct{})}
	start := time.Now()

	var readers sync.WaitGroup
	readers.Add(2)
	go h.pump(&readers, stdoutPipe, Stdout, onChunk)
	go h.pump(&readers, stderrPipe, Stderr, onChunk)

	go func() {
		readers.Wait()
		werr := cmd.Wait()
		metrics.CommandDuration.WithLabelValues(filepath.Base(c.Name), metrics.Result(werr)).Observe(time.Since(start).Seconds())

		h.mu.Lock()
		h.result = Result{Stdout: h.stdout.String(), Stderr: h.stderr.String()}
		if werr != nil {
			h.result.ExitCode = exitCode(werr)
			h.err = &ExitError{Cmd: h.name, Result: h.result, Err: werr}
		}
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

func (h *Handle) pump(wg *sync.WaitGroup, r io.Reader, stream Stream, onChunk ChunkFunc) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			h.mu.Lock()
			if stream == Stdout {
				h.stdout.WriteString(chunk)
			} else {
				h.stderr.WriteString(chunk)
			}
			h.mu.Unlock()
			if onChunk != nil {
				onChunk(stream, chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

// Done is closed once the process has exited and all output is captured.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the process exits.
func (h *Handle) Wait() (Result, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Output returns everything captured so far on both streams.
func (h *Handle) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Result{Stdout: h.stdout.String(), Stderr: h.stderr.String()}.Output()
}

// Kill terminates the process. Killing an exited process is not an error.
func (h *Handle) Kill() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
