package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/getactive/apiserver/types"
	"github.com/google/uuid"
)

// CommentRepository handles persistence for activity comments.
type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) Create(ctx context.Context, comment types.Comment) (types.Comment, error) {
	comment.ID = uuid.NewString()
	comment.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO activity_comments (id, activity_id, user_id, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		comment.ID,
		comment.ActivityID,
		comment.UserID,
		comment.Body,
		comment.CreatedAt,
	); err != nil {
		return types.Comment{}, err
	}
	return comment, nil
}

// ListByActivity returns comments newest first.
func (r *CommentRepository) ListByActivity(ctx context.Context, activityID string, offset, limit int) ([]types.Comment, int, error) {
	var total int
	const countQuery = `SELECT COUNT(*) FROM activity_comments WHERE activity_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, activityID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
		SELECT c.id, c.activity_id, c.user_id, u.username, c.comment, c.created_at
		FROM activity_comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.activity_id = $1
		ORDER BY c.created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, activityID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var comments []types.Comment
	for rows.Next() {
		var c types.Comment
		if err := rows.Scan(&c.ID, &c.ActivityID, &c.UserID, &c.Username, &c.Body, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}
