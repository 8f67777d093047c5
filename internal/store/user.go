package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/getactive/apiserver/types"
	"github.com/google/uuid"
)

const userColumns = `id, email, username, password_hash, account_state, avatar_key, avatar_updated_at, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.getOne(ctx, query, username)
}

// FindByEmailOrUsername returns every user holding either value.
func (r *UserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) ([]types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 OR username = $2`
	rows, err := r.db.QueryContext(ctx, query, email, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetByEmailAndUsername looks up the user owning exactly this pair.
func (r *UserRepository) GetByEmailAndUsername(ctx context.Context, email, username string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND username = $2`
	return r.getOne(ctx, query, email, username)
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.AccountState == "" {
		user.AccountState = types.AccountUnverified
	}

	const query = `
		INSERT INTO users (id, email, username, password_hash, account_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.AccountState,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

// TransitionAccountState moves the account from one state to another.
// It reports false when the account was not in the expected state.
func (r *UserRepository) TransitionAccountState(ctx context.Context, id string, from, to types.AccountState) (bool, error) {
	const query = `
		UPDATE users
		SET account_state = $1,
			updated_at = $2
		WHERE id = $3 AND account_state = $4`
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id, key string, updatedAt time.Time) error {
	const query = `
		UPDATE users
		SET avatar_key = $1,
			avatar_updated_at = $2,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, key, updatedAt, id)
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

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, translateError(err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user            types.User
		avatarUpdatedAt sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.AccountState,
		&user.AvatarKey,
		&avatarUpdatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	if avatarUpdatedAt.Valid {
		t := avatarUpdatedAt.Time
		user.AvatarUpdatedAt = &t
	}
	return user, nil
}
