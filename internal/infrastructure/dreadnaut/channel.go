// Package dreadnaut drives a long-lived nauty dreadnaut process over its
// standard streams.  One Channel owns one process, which it restarts
// transparently when the process dies between requests.
package dreadnaut

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/turtacn/charge-repository/internal/config"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// State is the lifecycle state of a Channel's process.
type State int

const (
	// StateNotStarted means no process has been spawned yet.
	StateNotStarted State = iota
	// StateRunning means a process is alive and accepting requests.
	StateRunning
	// StateDead means the last process exited or failed; the next Exchange
	// spawns a new one.
	StateDead
	// StateClosed means Close was called.  The Channel is unusable.
	StateClosed
)

func (s State) String() string {
	names := []string{"not_started", "running", "dead", "closed"}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// terminator marks the end of every answer: requests ask dreadnaut to print
// it after the canonical labelling.
var terminator = []byte("END")

// stderrTail is how much of the process's stderr is kept for error details.
const stderrTail = 2048

// Config configures a Channel.
type Config struct {
	// Executable is a path or a name resolved through PATH.
	Executable string
	Args       []string
	// Env entries are appended to the current environment.
	Env []string
	// QuitTimeout bounds how long Close waits for a graceful exit.
	QuitTimeout time.Duration
	// ReadChunkSize is the size of each read from the process's stdout.
	ReadChunkSize int
}

// ConfigFrom converts the solver section of the application configuration.
func ConfigFrom(c config.SolverConfig) Config {
	return Config{
		Executable:    c.Executable,
		QuitTimeout:   c.QuitTimeout,
		ReadChunkSize: c.ReadChunkSize,
	}
}

// Channel is a request/response link to one dreadnaut process.  It is not
// meant to be shared between goroutines; the internal mutex only keeps
// accidental sharing from interleaving requests.
type Channel struct {
	cfg     Config
	path    string
	logger  logging.Logger
	metrics *prometheus.RepoMetrics

	mu     sync.Mutex
	state  State
	proc   *process
	starts int
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *tailBuffer
	exited chan struct{}
}

// New validates the executable and spawns the first process.  A missing or
// non-executable solver is a configuration error and is never retried.
// metrics may be nil.
func New(cfg Config, logger logging.Logger, metrics *prometheus.RepoMetrics) (*Channel, error) {
	if cfg.QuitTimeout <= 0 {
		cfg.QuitTimeout = config.DefaultQuitTimeout
	}
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = config.DefaultReadChunkSize
	}

	path, err := resolve(cfg.Executable)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		cfg:     cfg,
		path:    path,
		logger:  logging.OrDefault(logger).Named("dreadnaut").With(logging.String("executable", path)),
		metrics: metrics,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureRunning(); err != nil {
		return nil, err
	}
	return c, nil
}

func resolve(executable string) (string, error) {
	if executable == "" {
		return "", errors.New(errors.CodeSolverExec, "solver executable not configured")
	}
	path, err := exec.LookPath(executable)
	if err != nil {
		return "", errors.New(errors.CodeSolverExec, "solver executable not found").
			WithDetailf("executable=%q", executable).WithCause(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.New(errors.CodeSolverExec, "cannot stat solver executable").
			WithDetailf("path=%q", path).WithCause(err)
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return "", errors.New(errors.CodeSolverExec, "solver executable is not an executable file").
			WithDetailf("path=%q mode=%s", path, info.Mode())
	}
	return path, nil
}

// State returns the current lifecycle state.  A process that exited on its
// own is reported as dead.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reap()
	return c.state
}

// Pid returns the process id of the running solver, or 0.
func (c *Channel) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reap()
	if c.state != StateRunning {
		return 0
	}
	return c.proc.cmd.Process.Pid
}

// EnsureRunning spawns a process unless a live one exists.
func (c *Channel) EnsureRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureRunning()
}

// reap notices a process that has exited by itself.
func (c *Channel) reap() {
	if c.state != StateRunning {
		return
	}
	select {
	case <-c.proc.exited:
		c.logger.Warn("solver process exited", logging.String("stderr", c.proc.stderr.String()))
		c.proc.close()
		c.proc = nil
		c.state = StateDead
	default:
	}
}

func (c *Channel) ensureRunning() error {
	if c.state == StateClosed {
		return errors.New(errors.CodeSolverClosed, "solver channel is closed")
	}
	c.reap()
	if c.state == StateRunning {
		return nil
	}

	p, err := c.spawn()
	if err != nil {
		c.state = StateDead
		return err
	}

	reason := "initial"
	if c.starts > 0 {
		reason = "restart"
	}
	c.starts++
	c.proc = p
	c.state = StateRunning
	c.metrics.RecordSolverStart(reason)
	c.logger.Debug("solver process started",
		logging.Int("pid", p.cmd.Process.Pid),
		logging.String("reason", reason))
	return nil
}

func (c *Channel) spawn() (*process, error) {
	cmd := exec.Command(c.path, c.cfg.Args...)
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), c.cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.New(errors.CodeSolverExec, "create solver stdin").WithCause(err)
	}
	// stdout is a plain pipe rather than StdoutPipe so that Wait, which runs
	// concurrently, never closes it under a pending read.
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, errors.New(errors.CodeSolverExec, "create solver stdout").WithCause(err)
	}
	cmd.Stdout = pw
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pr.Close()
		_ = pw.Close()
		return nil, errors.New(errors.CodeSolverExec, "start solver process").
			WithDetailf("path=%q", c.path).WithCause(err)
	}
	_ = pw.Close()

	p := &process{cmd: cmd, stdin: stdin, stdout: pr, stderr: stderr, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// Exchange sends one request and returns the answer up to and including the
// END marker, with surrounding whitespace trimmed.  There is no built-in
// timeout; cancelling ctx kills the process and fails the call.  Any I/O
// failure leaves the channel dead and the next call starts a new process.
func (c *Channel) Exchange(ctx context.Context, request string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return "", errors.New(errors.CodeSolverClosed, "solver channel is closed")
	}
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.CodeCanceled, "solver exchange canceled")
	}

	start := time.Now()
	out, err := c.exchange(ctx, request)
	c.metrics.RecordExchange(time.Since(start), err)
	return out, err
}

func (c *Channel) exchange(ctx context.Context, request string) (string, error) {
	if err := c.ensureRunning(); err != nil {
		return "", err
	}
	p := c.proc

	stop := context.AfterFunc(ctx, p.kill)
	defer stop()

	out, err := p.roundTrip(request, c.cfg.ReadChunkSize)
	if err == nil {
		return out, nil
	}

	p.kill()
	p.awaitExit(c.cfg.QuitTimeout)
	tail := p.stderr.String()
	p.close()
	c.proc = nil
	c.state = StateDead

	if ctx.Err() != nil {
		return "", errors.Wrap(ctx.Err(), errors.CodeCanceled, "solver exchange canceled")
	}
	c.logger.Warn("solver exchange failed", logging.Err(err), logging.String("stderr", tail))
	appErr := errors.New(errors.CodeSolverIO, "solver exchange failed").WithCause(err)
	if tail != "" {
		appErr = appErr.WithDetailf("stderr=%q", tail)
	}
	return "", appErr
}

func (p *process) roundTrip(request string, chunkSize int) (string, error) {
	if _, err := io.WriteString(p.stdin, request); err != nil {
		return "", err
	}

	var acc []byte
	buf := make([]byte, chunkSize)
	for {
		n, err := p.stdout.Read(buf)
		if n > 0 {
			// Only the new bytes plus a possible split marker need scanning.
			from := len(acc) - (len(terminator) - 1)
			if from < 0 {
				from = 0
			}
			acc = append(acc, buf[:n]...)
			if bytes.Contains(acc[from:], terminator) {
				return string(bytes.TrimSpace(acc)), nil
			}
		}
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
	}
}

func (p *process) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// awaitExit waits for the waiter goroutine, which also drains stderr.
func (p *process) awaitExit(limit time.Duration) {
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-p.exited:
	case <-timer.C:
	}
}

func (p *process) close() {
	_ = p.stdin.Close()
	_ = p.stdout.Close()
}

// Close asks the process to quit, waits up to QuitTimeout and kills it if it
// is still alive.  Errors from a process that is already gone are ignored.
// Close may be called more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	p := c.proc
	c.proc = nil
	if p == nil {
		return nil
	}

	_, _ = io.WriteString(p.stdin, "q\n")
	_ = p.stdin.Close()

	timer := time.NewTimer(c.cfg.QuitTimeout)
	defer timer.Stop()
	select {
	case <-p.exited:
	case <-timer.C:
		c.logger.Warn("solver did not quit in time, killing", logging.Duration("timeout", c.cfg.QuitTimeout))
		p.kill()
		<-p.exited
	}
	_ = p.stdout.Close()
	c.logger.Debug("solver process stopped", logging.Int("starts", c.starts))
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}
