package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"route-optimizer/internal/database"
	"route-optimizer/internal/models"
)

type routeHistoryRepository struct {
	store *Store
}

const routeColumns = `id, session_id, objective, solver, matrix_source, stop_count,
	total_distance_km, total_time_h, payload, created_at`

func (r *routeHistoryRepository) Save(ctx context.Context, rec *models.RouteRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO optimized_routes (` + routeColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.store.db.ExecContext(ctx, query,
		rec.ID, nullString(rec.SessionID), string(rec.Objective), rec.Solver, rec.MatrixSource, rec.StopCount,
		rec.TotalDistanceKm, rec.TotalTimeHours, rec.Payload, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save route record: %w", err)
	}
	return nil
}

func (r *routeHistoryRepository) GetByID(ctx context.Context, id string) (*models.RouteRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	row := r.store.db.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM optimized_routes WHERE id = ?`, id)
	rec, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route record: %w", err)
	}
	return rec, nil
}

func (r *routeHistoryRepository) List(ctx context.Context, limit int) ([]models.RouteRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := `SELECT ` + routeColumns + ` FROM optimized_routes ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := r.store.db.QueryContext(ctx, query, database.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query route records: %w", err)
	}
	defer rows.Close()

	records := []models.RouteRecord{}
	for rows.Next() {
		rec, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route records: %w", err)
	}
	return records, nil
}

func scanRoute(row rowScanner) (*models.RouteRecord, error) {
	var (
		rec       models.RouteRecord
		sessionID sql.NullString
		objective string
	)
	err := row.Scan(&rec.ID, &sessionID, &objective, &rec.Solver, &rec.MatrixSource, &rec.StopCount,
		&rec.TotalDistanceKm, &rec.TotalTimeHours, &rec.Payload, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.SessionID = sessionID.String
	rec.Objective = models.Objective(objective)
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
