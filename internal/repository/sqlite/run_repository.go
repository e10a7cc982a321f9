package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
	"github.com/anime-shed/defect-inspector-go/internal/repository"
)

// RunRepository implements repository.DetectionRunRepository for SQLite.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new SQLite detection run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun inserts the run and its boxes in a single transaction.
func (r *RunRepository) SaveRun(ctx context.Context, run *repository.DetectionRun) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO detection_runs (session_id, filename, format, mode, width, height, status,
			box_count, error_message, processing_ms, archive_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.SessionID, run.Filename, run.Format, run.Mode, run.Width, run.Height, string(run.Status),
		len(run.Boxes), run.ErrorMessage, run.ProcessingTime.Milliseconds(), run.ArchiveURL, run.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert detection run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	if len(run.Boxes) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO detection_boxes (run_id, class_id, label, confidence, x1, y1, x2, y2)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, b := range run.Boxes {
			if _, err := stmt.ExecContext(ctx, id, b.ClassID, b.Label, b.Confidence, b.X1, b.Y1, b.X2, b.Y2); err != nil {
				return 0, fmt.Errorf("failed to insert detection box: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit detection run: %w", err)
	}

	run.ID = id
	run.BoxCount = len(run.Boxes)
	return id, nil
}

const runColumns = `id, session_id, filename, format, mode, width, height, status,
	box_count, error_message, processing_ms, archive_url, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*repository.DetectionRun, error) {
	var (
		run    repository.DetectionRun
		status string
		ms     int64
	)
	err := s.Scan(&run.ID, &run.SessionID, &run.Filename, &run.Format, &run.Mode, &run.Width, &run.Height,
		&status, &run.BoxCount, &run.ErrorMessage, &ms, &run.ArchiveURL, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Status = repository.RunStatus(status)
	run.ProcessingTime = time.Duration(ms) * time.Millisecond
	return &run, nil
}

// GetRun retrieves a run and its boxes.
func (r *RunRepository) GetRun(ctx context.Context, id int64) (*repository.DetectionRun, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	run, err := scanRun(r.db.Conn().QueryRowContext(ctx, `SELECT `+runColumns+` FROM detection_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection run: %w", err)
	}

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT class_id, label, confidence, x1, y1, x2, y2
		FROM detection_boxes WHERE run_id = ? ORDER BY confidence DESC, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection boxes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b detector.Box
		if err := rows.Scan(&b.ClassID, &b.Label, &b.Confidence, &b.X1, &b.Y1, &b.X2, &b.Y2); err != nil {
			return nil, fmt.Errorf("failed to scan detection box: %w", err)
		}
		run.Boxes = append(run.Boxes, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read detection boxes: %w", err)
	}

	return run, nil
}

// ListRuns returns the newest runs first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*repository.DetectionRun, error) {
	if limit <= 0 {
		limit = 50
	}

	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT `+runColumns+` FROM detection_runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*repository.DetectionRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountByStatus groups runs by status.
func (r *RunRepository) CountByStatus(ctx context.Context) (map[repository.RunStatus]int64, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `SELECT status, COUNT(*) FROM detection_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count detection runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[repository.RunStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan run count: %w", err)
		}
		counts[repository.RunStatus(status)] = n
	}
	return counts, rows.Err()
}

// Close closes the underlying database.
func (r *RunRepository) Close() error {
	return r.db.Close()
}
