package orchestrator

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/acorg/go3seq/internal/analysis"
	"github.com/acorg/go3seq/internal/lua"
	"github.com/acorg/go3seq/internal/models"
	"github.com/acorg/go3seq/internal/process"
	"github.com/acorg/go3seq/internal/recombinant"
	"github.com/acorg/go3seq/internal/seqsource"
	"github.com/acorg/go3seq/internal/storage"
	"github.com/acorg/go3seq/internal/workspace"
)

// Orchestrator runs analyses and keeps their history in storage.
type Orchestrator struct {
	storage *storage.Storage
	workDir string
	logger  *zap.Logger
	runner  process.Runner
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRunner replaces how 3seq is started.
func WithRunner(r process.Runner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

func New(store *storage.Storage, workDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		storage: store,
		workDir: workDir,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request describes one analysis.
type Request struct {
	Source       seqsource.Source
	PValueTable  string
	Threshold    any
	Binary       string
	OutputPrefix string
	FilterPath   string
	KeepOutput   bool
	DryRun       bool
}

type Result struct {
	Run          *models.Run
	Invocation   *models.Invocation
	Recombinants []*models.Recombinant

	// Found is the number of recombinants 3seq reported before filtering.
	Found      int
	FilterLogs []string

	// RecombinantFile is set when the working directory is kept.
	RecombinantFile string
}

func (o *Orchestrator) newAnalysis(table, binary, prefix string, dryRun bool) (*analysis.Analysis, error) {
	execOpts := []process.Option{process.WithLogger(o.logger), process.WithDryRun(dryRun)}
	if o.runner != nil {
		execOpts = append(execOpts, process.WithRunner(o.runner))
	}

	opts := []analysis.Option{
		analysis.WithExecutor(process.New(execOpts...)),
		analysis.WithBaseDir(o.workDir),
		analysis.WithRecorder(o.storage),
		analysis.WithLogger(o.logger),
	}
	if binary != "" {
		opts = append(opts, analysis.WithBinary(binary))
	}
	if prefix != "" {
		opts = append(opts, analysis.WithOutputPrefix(prefix))
	}
	return analysis.New(table, opts...)
}

// Execute runs 3seq for req, stores the recombinants it finds and, unless
// req.KeepOutput is set, removes the working directory afterwards. A failed
// run keeps its working directory so the tool's output can be inspected.
func (o *Orchestrator) Execute(req *Request) (*Result, error) {
	a, err := o.newAnalysis(req.PValueTable, req.Binary, req.OutputPrefix, req.DryRun)
	if err != nil {
		return nil, err
	}

	inv, err := a.Run(req.Source, analysis.WithThreshold(req.Threshold))
	result := &Result{Run: a.Record(), Invocation: inv}
	if err != nil {
		if result.Run == nil {
			// Nothing was recorded that could point at the directory
			if rmErr := a.RemoveOutput(); rmErr != nil {
				o.logger.Warn("failed to remove working directory", zap.Error(rmErr))
			}
		}
		return result, err
	}

	seq, err := a.Recombinants()
	if errors.Is(err, analysis.ErrNoResults) {
		// Dry run
		return result, o.cleanup(a, result.Run, req.KeepOutput)
	}
	if err != nil {
		return result, err
	}

	recs, err := recombinant.Collect(seq)
	if err != nil {
		return result, o.failRun(result.Run, err)
	}
	result.Found = len(recs)

	if req.FilterPath != "" {
		recs, result.FilterLogs, err = ApplyFilter(req.FilterPath, recs)
		if err != nil {
			return result, o.failRun(result.Run, err)
		}
	}
	result.Recombinants = recs
	if req.KeepOutput {
		result.RecombinantFile, _ = a.RecombinantFile()
	}

	if err := o.storage.SaveRecombinants(result.Run.ID, recs); err != nil {
		return result, fmt.Errorf("failed to save recombinants: %w", err)
	}
	result.Run.RecombinantCount = len(recs)

	return result, o.cleanup(a, result.Run, req.KeepOutput)
}

func (o *Orchestrator) cleanup(a *analysis.Analysis, run *models.Run, keep bool) error {
	if keep {
		return nil
	}
	if err := a.RemoveOutput(); err != nil {
		return err
	}
	run.WorkspacePath = ""
	return o.storage.UpdateRun(run)
}

func (o *Orchestrator) failRun(run *models.Run, cause error) error {
	run.Status = models.RunStatusFailed
	run.Error = cause.Error()
	if err := o.storage.UpdateRun(run); err != nil {
		o.logger.Error("failed to update run", zap.Int64("run_id", run.ID), zap.Error(err))
	}
	return cause
}

// Check asks 3seq to verify a p-value table.
func (o *Orchestrator) Check(table, binary string) (*models.Invocation, error) {
	a, err := o.newAnalysis(table, binary, "", false)
	if err != nil {
		return nil, err
	}
	return a.Check()
}

// ApplyFilter runs the Lua filter at path over recs.
func ApplyFilter(path string, recs []*models.Recombinant) ([]*models.Recombinant, []string, error) {
	f, err := lua.NewFilter(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	kept, err := f.Apply(recs)
	if err != nil {
		return nil, f.GetLogs(), err
	}
	return kept, f.GetLogs(), nil
}

// Read methods for TUI

func (o *Orchestrator) ListRuns(limit int) ([]*models.Run, error) {
	return o.storage.ListRuns(limit)
}

func (o *Orchestrator) GetRun(id int64) (*models.Run, error) {
	return o.storage.GetRun(id)
}

func (o *Orchestrator) GetInvocationsForRun(runID int64) ([]*models.Invocation, error) {
	return o.storage.GetInvocationsForRun(runID)
}

func (o *Orchestrator) GetRecombinantsForRun(runID int64) ([]*models.Recombinant, error) {
	return o.storage.GetRecombinantsForRun(runID)
}

// DeleteRun removes a run's working directory, if it still has one, and
// its stored history.
func (o *Orchestrator) DeleteRun(runID int64) error {
	run, err := o.storage.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if run.WorkspacePath != "" {
		ws := &workspace.Workspace{Path: run.WorkspacePath}
		if err := ws.Remove(); err != nil {
			return err
		}
	}

	return o.storage.DeleteRun(runID)
}
