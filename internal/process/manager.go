package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// ErrNotRunning is returned by WriteLine when there is no live process.
var ErrNotRunning = errors.New("process not running")

// maxLineLength bounds one captured output line.
const maxLineLength = 64 * 1024

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	Binary string
	Args   []string

	// Env are extra KEY=value entries added to the parent environment.
	Env []string

	WorkDir string

	// Stdin keeps a pipe to the process's standard input for WriteLine.
	Stdin bool

	// RestartOnFailure restarts the process when it exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the first backoff step; it doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a process must run before its restart
	// counter is reset.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnOutput receives every stdout/stderr line. Called from the
	// capture goroutines.
	OnOutput func(stream, line string)

	OnStart   func()
	OnStop    func(err error)
	OnRestart func(attempt int)
}

// DefaultConfig returns a Config with the standard restart policy.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartOnFailure:   true,
		RestartDelay:       5 * time.Second,
		MaxRestartDelay:    5 * time.Minute,
		StableThreshold:    2 * time.Minute,
		MaxRestartAttempts: 10,
		GracefulTimeout:    10 * time.Second,
	}
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager manages the lifecycle of one subprocess.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - WriteLine calls are serialised.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool
	stopCh        chan struct{}
	done          chan struct{}

	writeMu sync.Mutex
}

// NewManager creates a process manager, filling zero durations with
// the DefaultConfig values.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig(cfg.Name, cfg.Binary, cfg.Args)
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = def.MaxRestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = def.StableThreshold
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = def.GracefulTimeout
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the process and begins supervising it. The process is
// bound to ctx: cancelling it kills the process and ends supervision.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s is already running", m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.restartCount = 0
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.monitor(ctx)
	return nil
}

func (m *Manager) startProcess(ctx context.Context) error {
	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // binary comes from validated config

	// Own process group so Stop can signal helpers the binary spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	var stdin io.WriteCloser
	if m.config.Stdin {
		var err error
		if stdin, err = cmd.StdinPipe(); err != nil {
			return fmt.Errorf("creating stdin pipe: %w", err)
		}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.stdin = stdin
	m.status = StatusRunning
	m.startTime = time.Now()
	stopping := m.stopRequested
	m.mu.Unlock()

	if stopping {
		// Stop raced with a restart; the monitor reaps the process.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) //nolint:errcheck // best effort
	}

	go m.captureOutput("stdout", stdout)
	go m.captureOutput("stderr", stderr)

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

func (m *Manager) captureOutput(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineLength)
	for sc.Scan() {
		line := sc.Text()
		m.logger.Debug("process output", "name", m.config.Name, "stream", stream, "output", line)
		if m.config.OnOutput != nil {
			m.config.OnOutput(stream, line)
		}
	}
}

// WriteLine writes line plus a newline to the process's stdin.
func (m *Manager) WriteLine(line string) error {
	m.mu.RLock()
	stdin, status := m.stdin, m.status
	m.mu.RUnlock()

	if stdin == nil || status != StatusRunning {
		return fmt.Errorf("%w: %s", ErrNotRunning, m.config.Name)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := io.WriteString(stdin, line+"\n"); err != nil {
		return fmt.Errorf("writing to %s: %w", m.config.Name, err)
	}
	return nil
}

// monitor waits for the process and applies the restart policy.
func (m *Manager) monitor(ctx context.Context) {
	defer close(m.done)

	for {
		m.mu.RLock()
		cmd, started := m.cmd, m.startTime
		m.mu.RUnlock()

		err := cmd.Wait()

		m.mu.Lock()
		stopRequested := m.stopRequested
		m.stdin = nil
		if stopRequested {
			m.status = StatusStopped
		} else {
			m.status = StatusFailed
			m.lastError = err
			if time.Since(started) >= m.config.StableThreshold {
				m.restartCount = 0
			}
		}
		m.mu.Unlock()

		if stopRequested {
			m.logger.Info("process stopped as requested", "name", m.config.Name)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}

		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err)
		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}
		if !m.config.RestartOnFailure || ctx.Err() != nil {
			return
		}

		if !m.waitAndRestart(ctx) {
			return
		}
	}
}

// waitAndRestart sleeps for the backoff delay and restarts the process,
// retrying failed starts. It reports false when supervision should end.
func (m *Manager) waitAndRestart(ctx context.Context) bool {
	for {
		m.mu.Lock()
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return false
		}

		delay := m.calculateBackoffDelay(attempt)
		m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)
		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		m.mu.RLock()
		stopCh := m.stopCh
		m.mu.RUnlock()

		select {
		case <-ctx.Done():
			return false
		case <-stopCh:
			m.mu.Lock()
			m.status = StatusStopped
			m.mu.Unlock()
			return false
		case <-time.After(delay):
		}

		err := m.startProcess(ctx)
		if err == nil {
			return true
		}
		m.logger.Error("failed to restart process", "name", m.config.Name, "error", err)
		m.mu.Lock()
		m.lastError = err
		m.mu.Unlock()
	}
}

// calculateBackoffDelay doubles RestartDelay per attempt, capped at
// MaxRestartDelay.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return delay
}

// Stop sends SIGTERM to the process group, then SIGKILL after
// GracefulTimeout, and waits for supervision to end.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status == StatusStopped || m.done == nil {
		m.mu.Unlock()
		return nil
	}
	if !m.stopRequested {
		m.stopRequested = true
		close(m.stopCh)
	}
	cmd, stdin, done, status := m.cmd, m.stdin, m.done, m.status
	m.mu.Unlock()

	if status != StatusRunning || cmd == nil || cmd.Process == nil {
		// Failed and waiting for a restart: the monitor sees the flag.
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	if stdin != nil {
		stdin.Close() //nolint:errcheck // EOF lets cooperative children exit
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		m.logger.Info("process stopped gracefully", "name", m.config.Name)
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name, "timeout", m.config.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}
	<-done
	m.logger.Info("process killed", "name", m.config.Name)
	return nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error that ended the last run.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns the number of consecutive restarts.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// Uptime returns how long the current run has lasted, 0 when not running.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a snapshot of a managed process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	s := Stats{
		Name:         m.config.Name,
		Status:       m.Status(),
		PID:          m.PID(),
		Uptime:       m.Uptime(),
		RestartCount: m.RestartCount(),
	}
	if err := m.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}
