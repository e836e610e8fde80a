// Package process runs external commands synchronously and keeps an ordered
// log of every invocation.
package process

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acorg/go3seq/internal/models"
)

// ExternalToolError reports a command that ran but exited non-zero.
type ExternalToolError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExternalToolError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, stderr)
}

// Command describes one process to run.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin string
}

// Runner starts cmd and waits for it to finish. The returned exit code is
// the process exit status; err is reserved for failures to start or wait.
type Runner func(cmd *exec.Cmd) (exitCode int, err error)

// Executor runs commands one at a time. It is safe to share between
// goroutines, although every call blocks until its process exits.
type Executor struct {
	mu     sync.Mutex
	log    []*models.Invocation
	dryRun bool
	runner Runner
	logger *zap.Logger
}

type Option func(*Executor)

// WithDryRun makes the executor log commands instead of running them.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) { e.dryRun = dryRun }
}

func WithRunner(r Runner) Option {
	return func(e *Executor) { e.runner = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func New(opts ...Option) *Executor {
	e := &Executor{
		runner: runCmd,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) DryRun() bool {
	return e.dryRun
}

// Execute runs c and returns its invocation record. A non-zero exit returns
// both the invocation and an *ExternalToolError. The invocation is appended
// to the log whatever the outcome.
func (e *Executor) Execute(c Command) (*models.Invocation, error) {
	inv := &models.Invocation{
		Binary: c.Name,
		Args:   append([]string(nil), c.Args...),
		Dir:    c.Dir,
		Stdin:  c.Stdin,
		DryRun: e.dryRun,
	}
	defer e.append(inv)

	if e.dryRun {
		inv.StartedAt = time.Now()
		inv.CompletedAt = inv.StartedAt
		e.logger.Info("dry run, not executing",
			zap.String("command", inv.CommandLine()),
			zap.String("dir", c.Dir))
		return inv, nil
	}

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("executing", zap.String("command", inv.CommandLine()), zap.String("dir", c.Dir))

	inv.StartedAt = time.Now()
	exitCode, err := e.runner(cmd)
	inv.CompletedAt = time.Now()
	inv.Stdout = stdout.String()
	inv.Stderr = stderr.String()
	inv.ExitCode = exitCode

	if err != nil {
		inv.ExitCode = -1
		e.logger.Error("command failed to run", zap.String("command", inv.CommandLine()), zap.Error(err))
		return inv, fmt.Errorf("failed to run %s: %w", c.Name, err)
	}

	e.logger.Debug("command finished",
		zap.Int("exit_code", exitCode),
		zap.Duration("duration", inv.Duration()))

	if exitCode != 0 {
		return inv, &ExternalToolError{
			Command:  inv.CommandLine(),
			ExitCode: exitCode,
			Stderr:   inv.Stderr,
		}
	}
	return inv, nil
}

// Log returns the invocations made so far, oldest first.
func (e *Executor) Log() []*models.Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*models.Invocation(nil), e.log...)
}

func (e *Executor) append(inv *models.Invocation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, inv)
}

func runCmd(cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
