package types

import "time"

// Activity is an event users can create, join and discuss.
type Activity struct {
	// ID is the unique identifier of the activity (UUID).
	ID string `json:"id" db:"id"`

	// Name is the unique display name of the activity.
	Name string `json:"name" db:"name"`

	// Description is the free-form text shown to participants.
	Description string `json:"description" db:"description"`

	// Location is where the activity takes place.
	Location string `json:"location" db:"location"`

	// StartTime is when the activity begins.
	StartTime time.Time `json:"startDateTime" db:"start_time"`

	// EndTime is when the activity ends. Always after StartTime.
	EndTime time.Time `json:"endDateTime" db:"end_time"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// RoleType is the role a user holds within an activity.
type RoleType string

const (
	// RoleAdmin may update and delete the activity.
	RoleAdmin RoleType = "ADMIN"
	// RoleParticipant may read the roster and comment.
	RoleParticipant RoleType = "PARTICIPANT"
)

// Membership associates a user with an activity. There is at most one
// membership per (user, activity) pair.
type Membership struct {
	UserID     string   `json:"userId" db:"user_id"`
	ActivityID string   `json:"activityId" db:"activity_id"`
	Role       RoleType `json:"roleType" db:"role"`
}

// Participant is one roster entry of an activity.
type Participant struct {
	UserID   string   `json:"userId" db:"user_id"`
	Username string   `json:"username" db:"username"`
	Role     RoleType `json:"roleType" db:"role"`
}

// JoinedActivity is an activity together with the caller's role in it.
type JoinedActivity struct {
	Activity
	Role RoleType `json:"roleType" db:"role"`
}

// Comment is a message posted on an activity by one of its members.
type Comment struct {
	ID         string    `json:"id" db:"id"`
	ActivityID string    `json:"activityId" db:"activity_id"`
	UserID     string    `json:"userId" db:"user_id"`
	Username   string    `json:"username" db:"username"`
	Body       string    `json:"comment" db:"comment"`
	CreatedAt  time.Time `json:"timestamp" db:"created_at"`
}
