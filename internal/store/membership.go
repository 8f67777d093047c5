package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/getactive/apiserver/types"
)

// MembershipRepository handles the user_activities association.
type MembershipRepository struct {
	db *sql.DB
}

func NewMembershipRepository(db *sql.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) Get(ctx context.Context, userID, activityID string) (types.Membership, error) {
	const query = `
		SELECT user_id, activity_id, role
		FROM user_activities
		WHERE user_id = $1 AND activity_id = $2`
	var m types.Membership
	err := r.db.QueryRowContext(ctx, query, userID, activityID).Scan(&m.UserID, &m.ActivityID, &m.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Membership{}, ErrNotFound
		}
		return types.Membership{}, translateError(err)
	}
	return m, nil
}

// Add inserts a membership. A second membership for the same pair fails
// with a ConflictError on the primary key.
func (r *MembershipRepository) Add(ctx context.Context, m types.Membership) error {
	const query = `
		INSERT INTO user_activities (user_id, activity_id, role)
		VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, m.UserID, m.ActivityID, m.Role); err != nil {
		return translateError(err)
	}
	return nil
}

func (r *MembershipRepository) Remove(ctx context.Context, userID, activityID string) error {
	const query = `DELETE FROM user_activities WHERE user_id = $1 AND activity_id = $2`
	result, err := r.db.ExecContext(ctx, query, userID, activityID)
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

func (r *MembershipRepository) CountByRole(ctx context.Context, activityID string, role types.RoleType) (int, error) {
	const query = `SELECT COUNT(*) FROM user_activities WHERE activity_id = $1 AND role = $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, activityID, role).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListParticipants returns one page of the activity roster and the roster size.
func (r *MembershipRepository) ListParticipants(ctx context.Context, activityID string, offset, limit int) ([]types.Participant, int, error) {
	var total int
	const countQuery = `SELECT COUNT(*) FROM user_activities WHERE activity_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, activityID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
		SELECT u.id, u.username, ua.role
		FROM user_activities ua
		JOIN users u ON u.id = ua.user_id
		WHERE ua.activity_id = $1
		ORDER BY ua.joined_at ASC, u.username ASC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, activityID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var participants []types.Participant
	for rows.Next() {
		var p types.Participant
		if err := rows.Scan(&p.UserID, &p.Username, &p.Role); err != nil {
			return nil, 0, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return participants, total, nil
}

// ListJoined returns every activity userID is a member of.
func (r *MembershipRepository) ListJoined(ctx context.Context, userID string) ([]types.JoinedActivity, error) {
	const query = `
		SELECT a.id, a.name, a.description, a.location, a.start_time, a.end_time, a.created_at, a.updated_at, ua.role
		FROM user_activities ua
		JOIN activities a ON a.id = ua.activity_id
		WHERE ua.user_id = $1
		ORDER BY a.start_time ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var joined []types.JoinedActivity
	for rows.Next() {
		var j types.JoinedActivity
		if err := rows.Scan(
			&j.ID,
			&j.Name,
			&j.Description,
			&j.Location,
			&j.StartTime,
			&j.EndTime,
			&j.CreatedAt,
			&j.UpdatedAt,
			&j.Role,
		); err != nil {
			return nil, err
		}
		joined = append(joined, j)
	}
	return joined, rows.Err()
}
