package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// BeginRun creates a new Run row with status RUNNING (spec §4.4 step 1).
func (s *Store) BeginRun(ctx context.Context, projectID, engineVersion string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run (project_id, engine_version, status, started_at) VALUES (?, ?, ?, ?)`,
		projectID, engineVersion, RunStatusRunning, now,
	)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "begin run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "read new run id")
	}
	return &Run{
		RunID:         id,
		ProjectID:     projectID,
		EngineVersion: engineVersion,
		Status:        RunStatusRunning,
		StartedAt:     now,
	}, nil
}

// FinalizeRun sets a Run's terminal status and ended_at (spec §4.4 step 4).
// It is called on every exit path of the Build Orchestrator, including
// after a catastrophic failure, so a Run is never left RUNNING.
func (s *Store) FinalizeRun(ctx context.Context, runID int64, status RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE run SET status = ?, ended_at = ? WHERE run_id = ?`,
		status, now, runID,
	)
	if err != nil {
		return contexterr.Wrap(contexterr.KindIntegrity, err, "finalize run %d", runID)
	}
	return nil
}

// GetRun loads a Run by id.
func (s *Store) GetRun(ctx context.Context, runID int64) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r Run
	var ended sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, project_id, engine_version, status, started_at, ended_at FROM run WHERE run_id = ?`,
		runID,
	).Scan(&r.RunID, &r.ProjectID, &r.EngineVersion, &r.Status, &r.StartedAt, &ended)
	if err == sql.ErrNoRows {
		return nil, contexterr.Integrityf("run %d not found", runID)
	}
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "load run %d", runID)
	}
	if ended.Valid {
		r.EndedAt = &ended.Time
	}
	return &r, nil
}

// CreateDatasourceRun creates a DatasourceRun row (spec §4.4 step 3c). It is
// only called once a datasource has yielded at least one chunk.
func (s *Store) CreateDatasourceRun(ctx context.Context, dr DatasourceRun) (*DatasourceRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO datasource_run (run_id, plugin, full_type, source_id, storage_directory, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		dr.RunID, dr.Plugin, dr.FullType, dr.SourceID, dr.StorageDirectory, now,
	)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "create datasource_run for run %d", dr.RunID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "read new datasource_run id")
	}
	dr.DatasourceRunID = id
	dr.CreatedAt = now
	return &dr, nil
}

// GetDatasourceRun loads a DatasourceRun by id. Used by the Persistence
// Service to validate datasource_run_id before writing (spec §4.2).
func (s *Store) GetDatasourceRun(ctx context.Context, id int64) (*DatasourceRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDatasourceRunLocked(ctx, id)
}

func (s *Store) getDatasourceRunLocked(ctx context.Context, id int64) (*DatasourceRun, error) {
	var dr DatasourceRun
	err := s.db.QueryRowContext(ctx,
		`SELECT datasource_run_id, run_id, plugin, full_type, source_id, storage_directory, created_at
		 FROM datasource_run WHERE datasource_run_id = ?`,
		id,
	).Scan(&dr.DatasourceRunID, &dr.RunID, &dr.Plugin, &dr.FullType, &dr.SourceID, &dr.StorageDirectory, &dr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, contexterr.Integrityf("datasource_run %d does not exist", id)
	}
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "load datasource_run %d", id)
	}
	return &dr, nil
}

// LatestDatasourceRunForPath finds the most recent DatasourceRun whose
// source_id matches path, if any, used to detect a full_type change across
// builds for the same datasource path (SPEC_FULL §9.4).
func (s *Store) LatestDatasourceRunForPath(ctx context.Context, sourceID string) (*DatasourceRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dr DatasourceRun
	err := s.db.QueryRowContext(ctx,
		`SELECT datasource_run_id, run_id, plugin, full_type, source_id, storage_directory, created_at
		 FROM datasource_run WHERE source_id = ? ORDER BY datasource_run_id DESC LIMIT 1`,
		sourceID,
	).Scan(&dr.DatasourceRunID, &dr.RunID, &dr.Plugin, &dr.FullType, &dr.SourceID, &dr.StorageDirectory, &dr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "load latest datasource_run for %q", sourceID)
	}
	return &dr, nil
}

// ListDatasourceRunsForRun returns every DatasourceRun created within run,
// ordered by datasource_run_id, for the status CLI command's run detail view.
func (s *Store) ListDatasourceRunsForRun(ctx context.Context, runID int64) ([]DatasourceRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT datasource_run_id, run_id, plugin, full_type, source_id, storage_directory, created_at
		 FROM datasource_run WHERE run_id = ? ORDER BY datasource_run_id`,
		runID,
	)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "list datasource_runs for run %d", runID)
	}
	defer rows.Close()

	var out []DatasourceRun
	for rows.Next() {
		var dr DatasourceRun
		if err := rows.Scan(&dr.DatasourceRunID, &dr.RunID, &dr.Plugin, &dr.FullType, &dr.SourceID, &dr.StorageDirectory, &dr.CreatedAt); err != nil {
			return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "scan datasource_run row")
		}
		out = append(out, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "iterate datasource_runs for run %d", runID)
	}
	return out, nil
}

// LatestRunID returns the run_id of the most recently started Run, or 0
// if no Run has ever been recorded, for the status CLI command's default
// "most recent build" view.
func (s *Store) LatestRunID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT run_id FROM run ORDER BY run_id DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, contexterr.Wrap(contexterr.KindIntegrity, err, "find latest run")
	}
	return id, nil
}

// CountChunks returns the number of chunks belonging to a DatasourceRun,
// used by the testable-property assertions in §8 (Δ|chunk| = n).
func (s *Store) CountChunks(ctx context.Context, datasourceRunID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk WHERE datasource_run_id = ?`, datasourceRunID).Scan(&n)
	if err != nil {
		return 0, contexterr.Wrap(contexterr.KindIntegrity, err, "count chunks for datasource_run %d", datasourceRunID)
	}
	return n, nil
}
