// Package analysis drives one 3seq recombination analysis: it stages the
// input in a scratch directory, runs the tool there and locates the files
// it leaves behind.
package analysis

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acorg/go3seq/internal/models"
	"github.com/acorg/go3seq/internal/process"
	"github.com/acorg/go3seq/internal/recombinant"
	"github.com/acorg/go3seq/internal/seqsource"
	"github.com/acorg/go3seq/internal/workspace"
)

const (
	DefaultBinary       = "3seq"
	DefaultOutputPrefix = "output"

	// RecombinantSuffix names the file 3seq writes its recombinant
	// triplets to.
	RecombinantSuffix = ".3s.rec"
	LongRecSuffix     = ".3s.longRec"
	LogSuffix         = ".3s.log"
)

// 3seq asks for confirmation before it overwrites existing output.
const confirm = "y\n"

// ErrNoResults is returned when output is requested before a run has
// completed successfully.
var ErrNoResults = errors.New("no analysis results: run has not completed successfully")

// ConfigurationError reports an unusable p-value table.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("p-value table %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Recorder persists runs and the invocations they make.
type Recorder interface {
	CreateRun(run *models.Run) (int64, error)
	UpdateRun(run *models.Run) error
	CreateInvocation(inv *models.Invocation) (int64, error)
}

// Analysis runs 3seq against a fixed p-value table. At most one working
// directory is live at a time; each Run replaces the previous one.
type Analysis struct {
	pValueTable  string
	binary       string
	outputPrefix string
	baseDir      string
	executor     *process.Executor
	recorder     Recorder
	logger       *zap.Logger

	ws     *workspace.Workspace
	result *workspace.Workspace
	record *models.Run
}

type Option func(*Analysis)

func WithBinary(binary string) Option {
	return func(a *Analysis) { a.binary = binary }
}

func WithExecutor(e *process.Executor) Option {
	return func(a *Analysis) { a.executor = e }
}

// WithBaseDir sets where working directories are created. The default is
// the system temporary directory.
func WithBaseDir(dir string) Option {
	return func(a *Analysis) { a.baseDir = dir }
}

func WithRecorder(r Recorder) Option {
	return func(a *Analysis) { a.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Analysis) { a.logger = l }
}

// WithOutputPrefix sets the -id passed to 3seq, which names its output
// files.
func WithOutputPrefix(prefix string) Option {
	return func(a *Analysis) { a.outputPrefix = prefix }
}

// New checks that pValueTable is a readable file and returns an analysis
// that uses it. No process is started.
func New(pValueTable string, opts ...Option) (*Analysis, error) {
	if pValueTable == "" {
		return nil, &ConfigurationError{Path: pValueTable, Err: errors.New("no path given")}
	}

	abs, err := filepath.Abs(pValueTable)
	if err != nil {
		return nil, &ConfigurationError{Path: pValueTable, Err: err}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, &ConfigurationError{Path: pValueTable, Err: err}
	}
	if info.IsDir() {
		return nil, &ConfigurationError{Path: pValueTable, Err: errors.New("is a directory")}
	}

	a := &Analysis{
		pValueTable:  abs,
		binary:       DefaultBinary,
		outputPrefix: DefaultOutputPrefix,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.executor == nil {
		a.executor = process.New(process.WithLogger(a.logger))
	}
	if a.outputPrefix == "" || strings.ContainsRune(a.outputPrefix, filepath.Separator) {
		return nil, fmt.Errorf("invalid output prefix %q", a.outputPrefix)
	}

	return a, nil
}

func (a *Analysis) PValueTable() string {
	return a.pValueTable
}

type runOptions struct {
	threshold any
}

type RunOption func(*runOptions)

// WithThreshold passes -t to 3seq. t may be a string or any numeric type.
func WithThreshold(t any) RunOption {
	return func(o *runOptions) { o.threshold = t }
}

// FormatThreshold renders t the way it is passed on the command line.
// Strings are trimmed but otherwise passed through, so callers can force a
// particular decimal form. A nil t renders as "".
func FormatThreshold(t any) (string, error) {
	switch v := t.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	default:
		return "", fmt.Errorf("threshold must be a number or a string, got %T", t)
	}
}

func formatFloat(f float64, bitSize int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("threshold must be finite, got %v", f)
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize), nil
}

// Args returns the 3seq arguments for analysing input.
func (a *Analysis) Args(input, threshold string) []string {
	args := []string{"-full", "-ptable", a.pValueTable}
	if threshold != "" {
		args = append(args, "-t", threshold)
	}
	return append(args, "-id", a.outputPrefix, input)
}

// Run analyses src. Any previous working directory is removed first. On
// failure the new working directory is left in place for inspection and
// the error is returned unchanged; RemoveOutput cleans it up.
func (a *Analysis) Run(src seqsource.Source, opts ...RunOption) (*models.Invocation, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	threshold, err := FormatThreshold(o.threshold)
	if err != nil {
		return nil, err
	}

	if err := a.RemoveOutput(); err != nil {
		return nil, err
	}

	ws, err := workspace.Create(a.baseDir)
	if err != nil {
		return nil, err
	}
	a.ws = ws
	a.logger.Debug("created working directory", zap.String("dir", ws.Path))

	input, err := src.Resolve(ws.Path)
	if err != nil {
		return nil, err
	}

	args := a.Args(input, threshold)
	run := &models.Run{
		RunKey:        uuid.NewString(),
		CreatedAt:     time.Now(),
		InputPath:     input,
		PValueTable:   a.pValueTable,
		Threshold:     threshold,
		WorkspacePath: ws.Path,
		Status:        models.RunStatusRunning,
	}
	a.record = run
	if err := a.createRun(run); err != nil {
		return nil, err
	}

	inv, execErr := a.executor.Execute(process.Command{
		Name:  a.binary,
		Args:  args,
		Dir:   ws.Path,
		Stdin: confirm,
	})
	if err := a.saveInvocation(run, inv); err != nil {
		return inv, err
	}

	if execErr != nil {
		a.logger.Warn("3seq failed", zap.String("run_key", run.RunKey), zap.Error(execErr))
		a.finishRun(run, models.RunStatusFailed, execErr.Error())
		return inv, execErr
	}

	if err := ws.WriteRunMetadata(&workspace.RunMetadata{
		RunKey:      run.RunKey,
		CreatedAt:   run.CreatedAt,
		InputPath:   input,
		PValueTable: a.pValueTable,
		Threshold:   threshold,
		Command:     inv.CommandLine(),
	}); err != nil {
		return inv, err
	}

	// A dry run produces no output to point at
	if !inv.DryRun {
		a.result = ws
	}
	a.finishRun(run, models.RunStatusComplete, "")
	a.logger.Info("3seq finished",
		zap.String("run_key", run.RunKey),
		zap.String("dir", ws.Path),
		zap.Duration("duration", inv.Duration()))

	return inv, nil
}

func (a *Analysis) createRun(run *models.Run) error {
	if a.recorder == nil {
		return nil
	}
	id, err := a.recorder.CreateRun(run)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	run.ID = id
	return nil
}

func (a *Analysis) saveInvocation(run *models.Run, inv *models.Invocation) error {
	if a.recorder == nil || inv == nil {
		return nil
	}
	inv.RunID = run.ID
	inv.SequenceNum = 1
	id, err := a.recorder.CreateInvocation(inv)
	if err != nil {
		return fmt.Errorf("failed to record invocation: %w", err)
	}
	inv.ID = id
	return nil
}

func (a *Analysis) finishRun(run *models.Run, status models.RunStatus, reason string) {
	now := time.Now()
	run.Status = status
	run.Error = reason
	run.CompletedAt = &now
	if a.recorder == nil {
		return
	}
	if err := a.recorder.UpdateRun(run); err != nil {
		a.logger.Error("failed to update run", zap.String("run_key", run.RunKey), zap.Error(err))
	}
}

// Check asks 3seq to verify the p-value table.
func (a *Analysis) Check() (*models.Invocation, error) {
	inv, err := a.executor.Execute(process.Command{
		Name: a.binary,
		Args: []string{"-check", a.pValueTable},
	})
	if inv != nil && a.recorder != nil {
		if _, recErr := a.recorder.CreateInvocation(inv); recErr != nil {
			a.logger.Error("failed to record invocation", zap.Error(recErr))
		}
	}
	return inv, err
}

// RecombinantFile returns the path of the recombinants file written by the
// last successful run.
func (a *Analysis) RecombinantFile() (string, error) {
	return a.OutputFile(RecombinantSuffix)
}

// OutputFile returns the path of the 3seq output file with the given suffix
// from the last successful run.
func (a *Analysis) OutputFile(suffix string) (string, error) {
	if a.result == nil {
		return "", ErrNoResults
	}
	return a.result.File(a.outputPrefix + suffix), nil
}

// Recombinants lazily parses the recombinants file of the last successful
// run.
func (a *Analysis) Recombinants() (iter.Seq2[*models.Recombinant, error], error) {
	path, err := a.RecombinantFile()
	if err != nil {
		return nil, err
	}
	return recombinant.Read(path), nil
}

// RemoveOutput deletes the working directory and forgets the last result.
// It does nothing if no directory is live.
func (a *Analysis) RemoveOutput() error {
	a.result = nil
	if a.ws == nil {
		return nil
	}
	if err := a.ws.Remove(); err != nil {
		return err
	}
	a.logger.Debug("removed working directory", zap.String("dir", a.ws.Path))
	a.ws = nil
	return nil
}

// WorkDir returns the live working directory, or "" if there is none.
func (a *Analysis) WorkDir() string {
	if a.ws == nil {
		return ""
	}
	return a.ws.Path
}

// Record returns the run record of the most recent Run, or nil.
func (a *Analysis) Record() *models.Run {
	return a.record
}

// Log returns every invocation made through this analysis's executor.
func (a *Analysis) Log() []*models.Invocation {
	return a.executor.Log()
}
