package types

import "time"

// AccountState is the verification state of a user account.
type AccountState string

const (
	// AccountUnverified is the initial state after registration.
	AccountUnverified AccountState = "UNVERIFIED"
	// AccountVerified is reached once the registration token is confirmed.
	AccountVerified AccountState = "VERIFIED"
)

// User represents an account in the system.
// A loaded User is also the identity attached to an authenticated request.
type User struct {
	// ID is the unique identifier of the user (UUID).
	ID string `json:"userId" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// AccountState tracks whether the user confirmed their registration.
	AccountState AccountState `json:"accountState" db:"account_state"`

	// AvatarKey is the object storage key of the avatar image, empty when
	// the user never uploaded one.
	AvatarKey string `json:"-" db:"avatar_key"`

	// AvatarUpdatedAt is when the avatar was last replaced.
	AvatarUpdatedAt *time.Time `json:"avatarUpdatedAt,omitempty" db:"avatar_updated_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IsVerified reports whether the account confirmed its registration.
func (u User) IsVerified() bool {
	return u.AccountState == AccountVerified
}
