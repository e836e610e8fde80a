package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/acorg/go3seq/internal/models"
	_ "modernc.org/sqlite"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_key TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		input_path TEXT NOT NULL,
		pvalue_table TEXT NOT NULL,
		threshold TEXT,
		workspace_path TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		recombinant_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS invocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER REFERENCES runs(id),
		sequence_num INTEGER NOT NULL,
		binary_name TEXT NOT NULL,
		args TEXT NOT NULL,
		dir TEXT,
		dry_run INTEGER NOT NULL DEFAULT 0,
		exit_code INTEGER NOT NULL,
		stdout TEXT,
		stderr TEXT,
		started_at TIMESTAMP,
		completed_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS recombinants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		row_num INTEGER NOT NULL,
		p_id TEXT NOT NULL,
		q_id TEXT NOT NULL,
		c_id TEXT NOT NULL,
		m INTEGER NOT NULL,
		n INTEGER NOT NULL,
		k INTEGER NOT NULL,
		p REAL NOT NULL,
		hs INTEGER NOT NULL,
		log_p REAL NOT NULL,
		first_ds_p REAL NOT NULL,
		ds_p REAL NOT NULL,
		min_rec_length INTEGER NOT NULL,
		breakpoints TEXT NOT NULL,
		UNIQUE(run_id, row_num)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_invocations_run ON invocations(run_id);
	CREATE INDEX IF NOT EXISTS idx_recombinants_run ON recombinants(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) CreateRun(run *models.Run) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO runs (run_key, input_path, pvalue_table, threshold, workspace_path, status, error, recombinant_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunKey, run.InputPath, run.PValueTable, run.Threshold, run.WorkspacePath,
		run.Status, run.Error, run.RecombinantCount,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const runColumns = `id, run_key, created_at, completed_at, input_path, pvalue_table, threshold,
	workspace_path, status, error, recombinant_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var completedAt sql.NullTime
	var threshold, runErr sql.NullString

	err := row.Scan(
		&run.ID, &run.RunKey, &run.CreatedAt, &completedAt, &run.InputPath, &run.PValueTable,
		&threshold, &run.WorkspacePath, &run.Status, &runErr, &run.RecombinantCount,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.Threshold = threshold.String
	run.Error = runErr.String

	return &run, nil
}

func (s *Storage) GetRun(id int64) (*models.Run, error) {
	return scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

func (s *Storage) GetRunByKey(key string) (*models.Run, error) {
	return scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_key = ?`, key))
}

func (s *Storage) UpdateRun(run *models.Run) error {
	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ?, status = ?, error = ?, workspace_path = ?, recombinant_count = ?
		 WHERE id = ?`,
		run.CompletedAt, run.Status, run.Error, run.WorkspacePath, run.RecombinantCount, run.ID,
	)
	return err
}

func (s *Storage) ListRuns(limit int) ([]*models.Run, error) {
	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (s *Storage) CreateInvocation(inv *models.Invocation) (int64, error) {
	args, err := json.Marshal(inv.Args)
	if err != nil {
		return 0, err
	}

	var runID *int64
	if inv.RunID != 0 {
		runID = &inv.RunID
	}

	result, err := s.db.Exec(
		`INSERT INTO invocations (run_id, sequence_num, binary_name, args, dir, dry_run, exit_code, stdout, stderr, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, inv.SequenceNum, inv.Binary, string(args), inv.Dir, inv.DryRun, inv.ExitCode,
		inv.Stdout, inv.Stderr, inv.StartedAt, inv.CompletedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) GetInvocationsForRun(runID int64) ([]*models.Invocation, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, sequence_num, binary_name, args, dir, dry_run, exit_code, stdout, stderr, started_at, completed_at
		 FROM invocations WHERE run_id = ? ORDER BY sequence_num, id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invs []*models.Invocation
	for rows.Next() {
		var inv models.Invocation
		var args string
		var dir, stdout, stderr sql.NullString
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&inv.ID, &inv.RunID, &inv.SequenceNum, &inv.Binary, &args, &dir, &inv.DryRun,
			&inv.ExitCode, &stdout, &stderr, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(args), &inv.Args); err != nil {
			return nil, err
		}
		inv.Dir = dir.String
		inv.Stdout = stdout.String
		inv.Stderr = stderr.String
		if startedAt.Valid {
			inv.StartedAt = startedAt.Time
		}
		if completedAt.Valid {
			inv.CompletedAt = completedAt.Time
		}

		invs = append(invs, &inv)
	}

	return invs, rows.Err()
}

// SaveRecombinants replaces the stored recombinants of a run.
func (s *Storage) SaveRecombinants(runID int64, recs []*models.Recombinant) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM recombinants WHERE run_id = ?`, runID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO recombinants (run_id, row_num, p_id, q_id, c_id, m, n, k, p, hs, log_p, first_ds_p, ds_p, min_rec_length, breakpoints)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range recs {
		bps, err := json.Marshal(rec.Breakpoints)
		if err != nil {
			return err
		}
		_, err = stmt.Exec(
			runID, i+1, rec.PID, rec.QID, rec.RecombinantID, rec.M, rec.N, rec.K,
			rec.P, rec.HS, rec.LogP, rec.FirstDSP, rec.DSP, rec.MinRecLength, string(bps),
		)
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`UPDATE runs SET recombinant_count = ? WHERE id = ?`, len(recs), runID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Storage) GetRecombinantsForRun(runID int64) ([]*models.Recombinant, error) {
	rows, err := s.db.Query(
		`SELECT p_id, q_id, c_id, m, n, k, p, hs, log_p, first_ds_p, ds_p, min_rec_length, breakpoints
		 FROM recombinants WHERE run_id = ? ORDER BY row_num`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.Recombinant
	for rows.Next() {
		var rec models.Recombinant
		var bps string

		err := rows.Scan(
			&rec.PID, &rec.QID, &rec.RecombinantID, &rec.M, &rec.N, &rec.K, &rec.P, &rec.HS,
			&rec.LogP, &rec.FirstDSP, &rec.DSP, &rec.MinRecLength, &bps,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(bps), &rec.Breakpoints); err != nil {
			return nil, err
		}

		recs = append(recs, &rec)
	}

	return recs, rows.Err()
}

func (s *Storage) DeleteRun(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM recombinants WHERE run_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM invocations WHERE run_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}
