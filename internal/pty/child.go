// Package pty spawns child processes attached to a controlling
// pseudo-terminal and exposes the lifecycle operations a reactor needs:
// non-blocking reads delivered via callback, resize, signal routing to
// the whole process group, pause/resume, and a bounded terminate.
package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// ReadBufferSize bounds a single reader callback invocation, matching
// the backpressure budget in SPEC_FULL.md's concurrency model.
const ReadBufferSize = 64 * 1024

// DefaultTerminateTimeout is how long Terminate waits after SIGTERM
// before escalating to SIGKILL.
const DefaultTerminateTimeout = 3 * time.Second

// DefaultReapTimeout bounds how long Terminate waits for the process to
// be reaped after SIGKILL.
const DefaultReapTimeout = 5 * time.Second

// Child is a single child process attached to a controlling PTY, running
// in its own process group so that signals can be routed to any
// grandchildren it spawns.
type Child struct {
	file *os.File
	cmd  *exec.Cmd
	pid  int

	rows, cols uint16

	onOutput func([]byte)

	done     chan struct{}
	readDone chan struct{}

	exitCode    *int
	exitErr     error
	exitHandled bool

	waitOnce sync.Once
	waitErr  error
}

// SpawnConfig describes a child process to start under a PTY.
type SpawnConfig struct {
	// Command is the executable to run.
	Command string
	// Args are the executable's arguments (Command is argv[0]).
	Args []string
	// Dir is the working directory; empty means inherit the current one.
	Dir string
	// Env is appended to the inherited environment ("KEY=VALUE" entries).
	// TERM is set to xterm-256color if not already present.
	Env []string
	// Rows, Cols is the initial window size.
	Rows, Cols uint16
}

// New creates an unspawned Child. OnOutput, if set before Spawn, is
// invoked from the reader goroutine for every chunk read from the PTY,
// and exactly once with a nil slice on EOF.
func New(onOutput func([]byte)) *Child {
	return &Child{onOutput: onOutput}
}

// Spawn starts the child process attached to a new PTY sized to
// cfg.Rows x cfg.Cols, in a new process group, and begins the reader
// goroutine. The window size is set before the child execs.
func (c *Child) Spawn(cfg SpawnConfig) error {
	if cfg.Command == "" {
		return errors.New("pty: empty command")
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = mergeEnv(os.Environ(), cfg.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	file, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: cfg.Rows, Cols: cfg.Cols})
	if err != nil {
		return fmt.Errorf("pty: spawn %q: %w", cfg.Command, err)
	}

	if err := setNonblock(file); err != nil {
		_ = file.Close()
		_ = cmd.Process.Kill()
		return fmt.Errorf("pty: set nonblocking: %w", err)
	}

	c.file = file
	c.cmd = cmd
	c.pid = cmd.Process.Pid
	c.rows, c.cols = cfg.Rows, cfg.Cols
	c.done = make(chan struct{})
	c.readDone = make(chan struct{})

	go c.readerLoop()
	return nil
}

func mergeEnv(base, extra []string) []string {
	env := append([]string{}, base...)
	hasTerm := false
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "TERM=" {
			hasTerm = true
			break
		}
	}
	if !hasTerm {
		env = append(env, "TERM=xterm-256color")
	}
	return append(env, extra...)
}

func setNonblock(f *os.File) error {
	return syscall.SetNonblock(int(f.Fd()), true)
}

// readerLoop reads up to ReadBufferSize per call and hands each chunk to
// onOutput. On EOF or EIO (treated as EOF) it delivers a single nil
// payload and exits.
func (c *Child) readerLoop() {
	defer close(c.readDone)

	buf := make([]byte, ReadBufferSize)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		n, err := c.file.Read(buf)
		if n > 0 && c.onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.onOutput(chunk)
		}
		if err != nil {
			if isEOFLike(err) {
				if c.onOutput != nil {
					c.onOutput(nil)
				}
				return
			}
			// Transient non-blocking "no data yet" errors: wait for
			// readability instead of busy-looping.
			if errors.Is(err, syscall.EAGAIN) {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if c.onOutput != nil {
				c.onOutput(nil)
			}
			return
		}
	}
}

func isEOFLike(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO)
}

// Write sends bytes to the child's PTY, as if typed at the terminal.
func (c *Child) Write(p []byte) (int, error) {
	if c.file == nil {
		return 0, errors.New("pty: not spawned")
	}
	return c.file.Write(p)
}

// Resize updates the PTY window size and sends SIGWINCH to the process
// group so the child (and any job-controlled children) can react.
func (c *Child) Resize(rows, cols uint16) error {
	c.rows, c.cols = rows, cols
	if c.file == nil {
		return nil
	}
	if err := pty.Setsize(c.file, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("pty: resize: %w", err)
	}
	return c.Signal(unix.SIGWINCH)
}

// Size returns the current window size.
func (c *Child) Size() (rows, cols uint16) {
	return c.rows, c.cols
}

// Signal delivers sig to the child's entire process group. A group that
// no longer exists (child already reaped) is tolerated.
func (c *Child) Signal(sig unix.Signal) error {
	if c.pid == 0 {
		return nil
	}
	if err := unix.Kill(-c.pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("pty: signal %v: %w", sig, err)
	}
	return nil
}

// Pause suspends the process group via SIGSTOP.
func (c *Child) Pause() error {
	return c.Signal(unix.SIGSTOP)
}

// Resume resumes a paused process group via SIGCONT.
func (c *Child) Resume() error {
	return c.Signal(unix.SIGCONT)
}

// Terminate sends SIGTERM to the process group, waiting up to timeout
// (DefaultTerminateTimeout if zero) before escalating to SIGKILL, then
// waits up to DefaultReapTimeout for the process to be reaped.
func (c *Child) Terminate(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTerminateTimeout
	}
	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}

	reaped := make(chan error, 1)
	go func() { reaped <- c.Wait() }()

	_ = c.Signal(unix.SIGTERM)

	select {
	case <-reaped:
		return nil
	case <-time.After(timeout):
	}

	_ = c.Signal(unix.SIGKILL)

	select {
	case <-reaped:
		return nil
	case <-time.After(DefaultReapTimeout):
		return errors.New("pty: process did not reap after SIGKILL")
	}
}

// Wait blocks until the child has been reaped, recording its exit code.
// It is safe to call concurrently and more than once — the underlying
// os.Process.Wait runs exactly once.
func (c *Child) Wait() error {
	c.waitOnce.Do(func() {
		if c.cmd != nil {
			c.waitErr = c.cmd.Wait()
		}
		c.recordExit(c.waitErr)
	})
	return c.waitErr
}

func (c *Child) recordExit(err error) {
	if c.exitHandled {
		return
	}
	c.exitHandled = true
	c.exitErr = err
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		code = -1
	}
	c.exitCode = &code
}

// ExitCode returns the child's exit code, or nil if it has not been
// reaped yet (via Terminate, Close, or an external Wait).
func (c *Child) ExitCode() *int {
	return c.exitCode
}

// Close detaches the reader and releases the PTY file descriptor. It
// does not signal the child; callers that want a clean shutdown should
// call Terminate first.
func (c *Child) Close() error {
	if c.done != nil {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
	var err error
	if c.file != nil {
		err = c.file.Close()
	}
	if c.readDone != nil {
		<-c.readDone
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.Wait()
	}
	return err
}

// Pid returns the child's process id, or 0 if not spawned.
func (c *Child) Pid() int {
	return c.pid
}
