package orchestrator

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acorg/go3seq/internal/models"
	"github.com/acorg/go3seq/internal/seqsource"
	"github.com/acorg/go3seq/internal/storage"
)

const recOutput = "P_ACCNUM\tQ_ACCNUM\tC_ACCNUM\tm\tn\tk\tp\tHS?\tlog(p)\tDS(p)\tDS(p)\tmin_rec_length\tbreakpoints\n" +
	"A1\tA2\tR1\t3\t4\t5\t0.001\t1\t-3\t0.01\t0.02\t150\t100-120 & 300-310\n" +
	"A1\tA3\tR2\t1\t2\t3\t0.2\t0\t-0.7\t0.3\t0.4\t90\t10-20 & 30-40\n"

func writeOutput(out string) func(cmd *exec.Cmd) (int, error) {
	return func(cmd *exec.Cmd) (int, error) {
		return 0, os.WriteFile(filepath.Join(cmd.Dir, "output.3s.rec"), []byte(out), 0644)
	}
}

type fixture struct {
	orch    *Orchestrator
	store   *storage.Storage
	table   string
	workDir string
}

func newFixture(t *testing.T, runner func(cmd *exec.Cmd) (int, error)) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.New(filepath.Join(dir, "go3seq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	table := filepath.Join(dir, "PVT.3SEQ.2017.700")
	require.NoError(t, os.WriteFile(table, []byte("table"), 0644))

	workDir := filepath.Join(dir, "work")
	return &fixture{
		orch:    New(store, workDir, WithRunner(runner)),
		store:   store,
		table:   table,
		workDir: workDir,
	}
}

var sequences = seqsource.FromMap(map[string]string{
	"A1": "ACGTACGTAC",
	"A2": "ACGTTCGTAC",
	"A3": "ACGTTCGTAA",
	"R1": "ACGTACGTTC",
	"R2": "ACCTACGTTC",
})

func TestExecuteStoresRecombinants(t *testing.T) {
	f := newFixture(t, writeOutput(recOutput))

	result, err := f.orch.Execute(&Request{Source: sequences, PValueTable: f.table})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Found)
	require.Len(t, result.Recombinants, 2)

	run, err := f.store.GetRun(result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, run.Status)
	assert.Equal(t, 2, run.RecombinantCount)
	assert.Empty(t, run.WorkspacePath, "output is removed by default")

	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	stored, err := f.orch.GetRecombinantsForRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Recombinants, stored)
}

func TestExecuteKeepOutputAndDelete(t *testing.T) {
	f := newFixture(t, writeOutput(recOutput))

	result, err := f.orch.Execute(&Request{Source: sequences, PValueTable: f.table, KeepOutput: true})
	require.NoError(t, err)

	run, err := f.orch.GetRun(result.Run.ID)
	require.NoError(t, err)
	require.DirExists(t, run.WorkspacePath)
	assert.Equal(t, filepath.Join(run.WorkspacePath, "output.3s.rec"), result.RecombinantFile)
	assert.FileExists(t, result.RecombinantFile)

	require.NoError(t, f.orch.DeleteRun(run.ID))
	assert.NoDirExists(t, run.WorkspacePath)

	runs, err := f.orch.ListRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExecuteWithFilter(t *testing.T) {
	f := newFixture(t, writeOutput(recOutput))

	script := filepath.Join(t.TempDir(), "strong.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
function keep(r)
  if r.hs then
    log("keeping " .. r.recombinant_id)
  end
  return r.hs
end
`), 0644))

	result, err := f.orch.Execute(&Request{Source: sequences, PValueTable: f.table, FilterPath: script})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Found)
	require.Len(t, result.Recombinants, 1)
	assert.Equal(t, "R1", result.Recombinants[0].RecombinantID)
	assert.Equal(t, []string{"keeping R1"}, result.FilterLogs)

	run, err := f.store.GetRun(result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.RecombinantCount)
}

func TestExecuteMalformedOutputFailsRun(t *testing.T) {
	f := newFixture(t, writeOutput("P_ACCNUM\tQ_ACCNUM\nA1\tA2\tR1\n"))

	result, err := f.orch.Execute(&Request{Source: sequences, PValueTable: f.table})
	require.Error(t, err)

	run, err := f.store.GetRun(result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.DirExists(t, run.WorkspacePath)
}

func TestExecuteToolFailureKeepsWorkDir(t *testing.T) {
	f := newFixture(t, func(cmd *exec.Cmd) (int, error) { return 1, nil })

	result, err := f.orch.Execute(&Request{Source: sequences, PValueTable: f.table})
	require.Error(t, err)
	require.NotNil(t, result.Invocation)

	run, err := f.store.GetRun(result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.DirExists(t, run.WorkspacePath)

	invs, err := f.orch.GetInvocationsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, 1, invs[0].ExitCode)
}

func TestExecuteDryRun(t *testing.T) {
	called := false
	f := newFixture(t, func(cmd *exec.Cmd) (int, error) {
		called = true
		return 0, nil
	})

	result, err := f.orch.Execute(&Request{Source: sequences, PValueTable: f.table, DryRun: true})
	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, result.Invocation.DryRun)
	assert.Empty(t, result.Recombinants)
}

func TestCheck(t *testing.T) {
	f := newFixture(t, func(cmd *exec.Cmd) (int, error) { return 0, nil })

	inv, err := f.orch.Check(f.table, "/opt/3seq/3seq")
	require.NoError(t, err)
	assert.Equal(t, "/opt/3seq/3seq", inv.Binary)
	assert.Equal(t, []string{"-check", f.table}, inv.Args)
}

func TestDeleteMissingRun(t *testing.T) {
	f := newFixture(t, writeOutput(recOutput))
	assert.Error(t, f.orch.DeleteRun(99))
}

func TestExecuteUnsupportedInputLeavesNothing(t *testing.T) {
	f := newFixture(t, writeOutput(recOutput))

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))

	result, err := f.orch.Execute(&Request{Source: seqsource.Path(path), PValueTable: f.table})
	assert.ErrorIs(t, err, seqsource.ErrUnsupportedFormat)
	assert.Nil(t, result.Run)

	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
