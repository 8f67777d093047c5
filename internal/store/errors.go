package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a unique constraint.
var ErrConflict = errors.New("conflict")

const (
	uniqueViolation           = pq.ErrorCode("23505")
	invalidTextRepresentation = pq.ErrorCode("22P02")
)

// Constraint names declared in the migrations.
const (
	ConstraintUsersEmail      = "users_email_key"
	ConstraintUsersUsername   = "users_username_key"
	ConstraintActivitiesName  = "activities_name_key"
	ConstraintMembershipsPKey = "user_activities_pkey"
)

// ConflictError reports which unique constraint a write violated.
// It matches ErrConflict under errors.Is.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s", e.Constraint)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ConflictConstraint returns the violated constraint name of a conflict error.
func ConflictConstraint(err error) string {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Constraint
	}
	return ""
}

// translateError maps driver errors onto the store sentinels. A value that
// cannot be cast to a uuid column names no row, so it reads as ErrNotFound.
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case uniqueViolation:
		return &ConflictError{Constraint: pqErr.Constraint}
	case invalidTextRepresentation:
		return ErrNotFound
	}
	return err
}
