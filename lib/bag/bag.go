package bag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/kballard/go-shellquote"
	"golang.org/x/sys/unix"

	"github.com/onkernel/bagctl/lib/logger"
)

const (
	DefaultStopGracePeriod = 2 * time.Second
	DefaultExitFlushDelay  = time.Second

	// how long to wait for the process group to go away after SIGKILL
	killTimeout = 250 * time.Millisecond
)

// State is the lifecycle state of a Bag's child process.
type State int

const (
	// StateNoChild means no process has been started yet.
	StateNoChild State = iota
	// StateRunning means the child has been started and has not exited.
	StateRunning
	// StateExited means the child has exited and been reaped.
	StateExited
)

func (s State) String() string {
	switch s {
	case StateNoChild:
		return "no_child"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Streams controls the standard I/O of the child process.
type Streams struct {
	// Stdin feeds the child's stdin. If nil a pipe is created so Send can be used.
	Stdin io.Reader
	// Stdout and Stderr receive the child's output. If nil the wrapper's own are inherited.
	Stdout io.Writer
	Stderr io.Writer
	// TTY runs the child on a pseudo-terminal. Output is copied to Stdout and Send
	// writes to the terminal.
	TTY bool
}

// Params tunes how a Bag launches and stops its child. Nil fields take defaults.
type Params struct {
	// BinaryPath is the executable to run. If empty, argv[0] is looked up on $PATH.
	BinaryPath string
	// StopGracePeriod is how long Stop waits after SIGTERM before sending SIGKILL.
	StopGracePeriod *time.Duration
	// ExitFlushDelay is slept at the end of Use so the child's output lands before ours.
	ExitFlushDelay *time.Duration
	// Env is appended to the wrapper's environment for the child.
	Env []string
}

// Bag owns at most one external rosbag process for a fixed set of recordings.
type Bag struct {
	mu sync.Mutex

	recordings Recordings
	binaryPath string
	grace      time.Duration
	flushDelay time.Duration
	env        []string

	child *child
}

// child is one started process. Fields below exited are written by the reaper
// before exited is closed and are read-only afterwards.
type child struct {
	cmd     *exec.Cmd
	args    []string
	stdin   io.Writer
	started time.Time
	exited  chan struct{}

	err      error
	exitCode int
	ended    time.Time
}

func (c *child) done() bool {
	select {
	case <-c.exited:
		return true
	default:
		return false
	}
}

// New validates src and returns a Bag with no child process.
func New(src Source, params Params) (*Bag, error) {
	recs, err := NewRecordings(src)
	if err != nil {
		return nil, err
	}
	b := &Bag{
		recordings: recs,
		binaryPath: params.BinaryPath,
		grace:      DefaultStopGracePeriod,
		flushDelay: DefaultExitFlushDelay,
		env:        slices.Clone(params.Env),
	}
	if params.StopGracePeriod != nil {
		b.grace = *params.StopGracePeriod
	}
	if params.ExitFlushDelay != nil {
		b.flushDelay = *params.ExitFlushDelay
	}
	return b, nil
}

// Recordings returns the recording set this bag was created with.
func (b *Bag) Recordings() Recordings {
	return b.recordings
}

// Start spawns argv as the child process. argv[0] is the invocation name the
// child sees; the executable comes from Params.BinaryPath when set.
// An existing child handle is replaced; callers must not start twice concurrently.
func (b *Bag) Start(ctx context.Context, argv []string, streams Streams) error {
	log := logger.FromContext(ctx)
	if len(argv) == 0 {
		return errors.New("empty argument vector")
	}

	path := b.binaryPath
	if path == "" {
		path = argv[0]
	}
	cmd := exec.Command(path, argv[1:]...)
	cmd.Args[0] = argv[0]
	if len(b.env) > 0 {
		cmd.Env = append(os.Environ(), b.env...)
	}

	c := &child{
		cmd:      cmd,
		args:     slices.Clone(argv),
		exited:   make(chan struct{}),
		exitCode: -1,
	}

	if streams.TTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return fmt.Errorf("failed to start rosbag on a pty: %w", err)
		}
		go func() {
			_, _ = io.Copy(writerOr(streams.Stdout, os.Stdout), ptmx)
			_ = ptmx.Close()
		}()
		if streams.Stdin != nil {
			go copyUntilExit(ptmx, streams.Stdin, c.exited)
		} else {
			c.stdin = ptmx
		}
	} else {
		// own process group so signals reach everything rosbag spawns
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmd.Stdout = writerOr(streams.Stdout, os.Stdout)
		cmd.Stderr = writerOr(streams.Stderr, os.Stderr)
		if streams.Stdin != nil {
			cmd.Stdin = streams.Stdin
		} else {
			stdin, err := cmd.StdinPipe()
			if err != nil {
				return fmt.Errorf("failed to open rosbag stdin: %w", err)
			}
			c.stdin = stdin
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start rosbag process: %w", err)
		}
	}
	c.started = time.Now()

	b.mu.Lock()
	if prev := b.child; prev != nil && !prev.done() {
		log.Warn("replacing handle of a bag process that is still running", "pid", prev.cmd.Process.Pid)
	}
	b.child = c
	b.mu.Unlock()

	log.Info("started bag process", "pid", cmd.Process.Pid, "cmd", shellquote.Join(argv...))

	go c.reap(log)
	return nil
}

func (c *child) reap(log *slog.Logger) {
	err := c.cmd.Wait()
	c.err = err
	c.exitCode = c.cmd.ProcessState.ExitCode()
	c.ended = time.Now()
	close(c.exited)

	if err != nil {
		log.Info("bag process completed with error", "err", err, "exitCode", c.exitCode)
	} else {
		log.Info("bag process completed successfully", "exitCode", c.exitCode)
	}
}

func (b *Bag) current() *child {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.child
}

// Send writes data to the child's stdin.
func (b *Bag) Send(data string) error {
	c := b.current()
	if c == nil {
		return notRunning("talk to")
	}
	if c.stdin == nil {
		return ErrStdinNotPiped
	}
	if _, err := io.WriteString(c.stdin, data); err != nil {
		return fmt.Errorf("failed to write to rosbag stdin: %w", err)
	}
	return nil
}

type shutdownPhase struct {
	name    string
	signal  unix.Signal
	timeout time.Duration
	desc    string
}

// Stop sends SIGTERM to the child's process group, waits up to the grace period,
// then sends SIGKILL. Both signals are sent while the child has not been reaped;
// stopping an exited child is a no-op.
func (b *Bag) Stop(ctx context.Context) error {
	c := b.current()
	if c == nil {
		return notRunning("stop")
	}
	log := logger.FromContext(ctx)

	pid := c.cmd.Process.Pid
	phases := []shutdownPhase{
		{"terminate", unix.SIGTERM, b.grace, "graceful stop"},
		{"kill", unix.SIGKILL, killTimeout, "immediate kill"},
	}
	for _, phase := range phases {
		// a reaped pid may already belong to another process group
		if c.done() {
			break
		}
		log.Info("bag shutdown phase", "phase", phase.name, "desc", phase.desc, "pid", pid)
		// negative pid targets the whole group; errors mean it is already gone
		_ = unix.Kill(-pid, phase.signal)
		_ = waitForChan(ctx, phase.timeout, c.exited)
	}

	if !c.done() {
		return fmt.Errorf("bag process %d did not exit after SIGKILL", pid)
	}
	return nil
}

// Wait blocks until the child exits and returns its exit error, if any.
// It returns early with the context's cause if ctx is done first.
func (b *Bag) Wait(ctx context.Context) error {
	c := b.current()
	if c == nil {
		return notRunning("wait for")
	}
	select {
	case <-c.exited:
		return c.err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// IsRunning reports whether a child exists and has not exited. It never blocks.
func (b *Bag) IsRunning() bool {
	c := b.current()
	return c != nil && !c.done()
}

// State returns the lifecycle state of the current child.
func (b *Bag) State() State {
	c := b.current()
	switch {
	case c == nil:
		return StateNoChild
	case c.done():
		return StateExited
	default:
		return StateRunning
	}
}

// ExitCode returns the child's exit code once it has exited. The code is -1 if
// the child was ended by a signal.
func (b *Bag) ExitCode() (int, bool) {
	c := b.current()
	if c == nil || !c.done() {
		return 0, false
	}
	return c.exitCode, true
}

// Metadata describes the current child process.
type Metadata struct {
	PID       int
	StartTime time.Time
	EndTime   time.Time
}

// Metadata is a snapshot of the current child's metadata, or nil if there is none.
func (b *Bag) Metadata() *Metadata {
	c := b.current()
	if c == nil {
		return nil
	}
	md := &Metadata{PID: c.cmd.Process.Pid, StartTime: c.started}
	if c.done() {
		md.EndTime = c.ended
	}
	return md
}

// Args returns the argument vector of the current child, or nil.
func (b *Bag) Args() []string {
	c := b.current()
	if c == nil {
		return nil
	}
	return slices.Clone(c.args)
}

// copyUntilExit copies src to dst until either side fails or exited is closed.
// It stops at the first read that completes after the child exited.
func copyUntilExit(dst io.Writer, src io.Reader, exited <-chan struct{}) {
	buf := make([]byte, 1024)
	for {
		n, err := src.Read(buf)
		select {
		case <-exited:
			return
		default:
		}
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// waitForChan returns nil if and only if the channel is closed
func waitForChan(ctx context.Context, timeout time.Duration, c <-chan struct{}) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c:
		return nil
	case <-timer.C:
		return fmt.Errorf("process did not exit within %v timeout", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writerOr(w io.Writer, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
