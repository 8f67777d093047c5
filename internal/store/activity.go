package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/getactive/apiserver/types"
	"github.com/google/uuid"
)

const activityColumns = `id, name, description, location, start_time, end_time, created_at, updated_at`

// ActivityRepository handles persistence for activities.
type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// CreateWithAdmin inserts the activity and makes adminID its ADMIN in one transaction.
func (r *ActivityRepository) CreateWithAdmin(ctx context.Context, activity types.Activity, adminID string) (types.Activity, error) {
	now := time.Now().UTC()
	activity.ID = uuid.NewString()
	activity.CreatedAt = now
	activity.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Activity{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insertActivity = `
		INSERT INTO activities (id, name, description, location, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(
		ctx,
		insertActivity,
		activity.ID,
		activity.Name,
		activity.Description,
		activity.Location,
		activity.StartTime,
		activity.EndTime,
		activity.CreatedAt,
		activity.UpdatedAt,
	); err != nil {
		return types.Activity{}, translateError(err)
	}

	const insertMembership = `
		INSERT INTO user_activities (user_id, activity_id, role)
		VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insertMembership, adminID, activity.ID, types.RoleAdmin); err != nil {
		return types.Activity{}, translateError(err)
	}

	if err := tx.Commit(); err != nil {
		return types.Activity{}, err
	}
	return activity, nil
}

func (r *ActivityRepository) GetByID(ctx context.Context, id string) (types.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`
	activity, err := scanActivity(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Activity{}, ErrNotFound
		}
		return types.Activity{}, translateError(err)
	}
	return activity, nil
}

// List returns activities ordered by start time, optionally filtered by a
// case-insensitive name fragment, together with the total match count.
func (r *ActivityRepository) List(ctx context.Context, name string, offset, limit int) ([]types.Activity, int, error) {
	pattern := "%" + name + "%"

	var total int
	const countQuery = `SELECT COUNT(*) FROM activities WHERE name ILIKE $1`
	if err := r.db.QueryRowContext(ctx, countQuery, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE name ILIKE $1
		ORDER BY start_time ASC, id ASC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var activities []types.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, 0, err
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return activities, total, nil
}

func (r *ActivityRepository) Update(ctx context.Context, activity types.Activity) (types.Activity, error) {
	activity.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE activities
		SET name = $1,
			description = $2,
			location = $3,
			start_time = $4,
			end_time = $5,
			updated_at = $6
		WHERE id = $7
		RETURNING created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		activity.Name,
		activity.Description,
		activity.Location,
		activity.StartTime,
		activity.EndTime,
		activity.UpdatedAt,
		activity.ID,
	).Scan(&activity.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Activity{}, ErrNotFound
		}
		return types.Activity{}, translateError(err)
	}
	return activity, nil
}

// Delete removes the activity. Memberships and comments go with it through
// ON DELETE CASCADE.
func (r *ActivityRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM activities WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanActivity(row rowScanner) (types.Activity, error) {
	var activity types.Activity
	err := row.Scan(
		&activity.ID,
		&activity.Name,
		&activity.Description,
		&activity.Location,
		&activity.StartTime,
		&activity.EndTime,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	)
	return activity, err
}
