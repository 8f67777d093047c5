package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/internal/store"
	"github.com/getactive/apiserver/types"
)

const maxCommentLength = 1000

// ActivityRepository defines persistence operations for activities.
type ActivityRepository interface {
	CreateWithAdmin(ctx context.Context, activity types.Activity, adminID string) (types.Activity, error)
	GetByID(ctx context.Context, id string) (types.Activity, error)
	List(ctx context.Context, name string, offset, limit int) ([]types.Activity, int, error)
	Update(ctx context.Context, activity types.Activity) (types.Activity, error)
	Delete(ctx context.Context, id string) error
}

// MembershipRepository defines persistence operations for memberships.
type MembershipRepository interface {
	MembershipReader
	Add(ctx context.Context, m types.Membership) error
	Remove(ctx context.Context, userID, activityID string) error
	CountByRole(ctx context.Context, activityID string, role types.RoleType) (int, error)
	ListParticipants(ctx context.Context, activityID string, offset, limit int) ([]types.Participant, int, error)
	ListJoined(ctx context.Context, userID string) ([]types.JoinedActivity, error)
}

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment types.Comment) (types.Comment, error)
	ListByActivity(ctx context.Context, activityID string, offset, limit int) ([]types.Comment, int, error)
}

// ActivityRequest is a create or update request for an activity.
type ActivityRequest struct {
	ActivityInput
	StartTime time.Time `json:"startDateTime"`
	EndTime   time.Time `json:"endDateTime"`
}

// PageRequest selects a zero-based page.
type PageRequest struct {
	Page int
	Size int
}

func (p PageRequest) offset() int {
	return p.Page * p.Size
}

// ActivityService encapsulates activity use-cases. Mutations are gated by
// the PermissionEvaluator.
type ActivityService struct {
	activities  ActivityRepository
	memberships MembershipRepository
	comments    CommentRepository
	permissions *PermissionEvaluator
	now         func() time.Time
}

func NewActivityService(
	activities ActivityRepository,
	memberships MembershipRepository,
	comments CommentRepository,
	permissions *PermissionEvaluator,
) *ActivityService {
	return &ActivityService{
		activities:  activities,
		memberships: memberships,
		comments:    comments,
		permissions: permissions,
		now:         time.Now,
	}
}

// Create stores a new activity and makes identity its admin.
func (s *ActivityService) Create(ctx context.Context, identity types.User, req ActivityRequest) (types.Activity, error) {
	activity, err := s.validate(req)
	if err != nil {
		return types.Activity{}, err
	}

	created, err := s.activities.CreateWithAdmin(ctx, activity, identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Activity{}, activityNameExists()
		}
		return types.Activity{}, apierr.Internal("", "failed to create activity", err)
	}
	return created, nil
}

func (s *ActivityService) Get(ctx context.Context, id string) (types.Activity, error) {
	activity, err := s.activities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Activity{}, apierr.NotFound("Activity not found")
		}
		return types.Activity{}, apierr.Internal("", "failed to fetch activity", err)
	}
	return activity, nil
}

// List pages through activities whose name contains nameFilter.
func (s *ActivityService) List(ctx context.Context, nameFilter string, page PageRequest) (types.Page[types.Activity], error) {
	items, total, err := s.activities.List(ctx, strings.TrimSpace(nameFilter), page.offset(), page.Size)
	if err != nil {
		return types.Page[types.Activity]{}, apierr.Internal("", "failed to list activities", err)
	}
	return types.NewPage(items, page.Page, page.Size, total), nil
}

// Update replaces the editable fields of an activity. Admin only.
func (s *ActivityService) Update(ctx context.Context, identity types.User, id string, req ActivityRequest) (types.Activity, error) {
	if err := s.permissions.AssertAuthorizedToMutate(ctx, identity, id); err != nil {
		return types.Activity{}, err
	}

	activity, err := s.validate(req)
	if err != nil {
		return types.Activity{}, err
	}
	activity.ID = id

	updated, err := s.activities.Update(ctx, activity)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return types.Activity{}, apierr.NotFound("Activity not found")
		case errors.Is(err, store.ErrConflict):
			return types.Activity{}, activityNameExists()
		default:
			return types.Activity{}, apierr.Internal("", "failed to update activity", err)
		}
	}
	return updated, nil
}

// Delete removes an activity. Admin only. Participants block deletion
// unless force is set.
func (s *ActivityService) Delete(ctx context.Context, identity types.User, id string, force bool) error {
	if err := s.permissions.AssertAuthorizedToMutate(ctx, identity, id); err != nil {
		return err
	}

	if !force {
		count, err := s.memberships.CountByRole(ctx, id, types.RoleParticipant)
		if err != nil {
			return apierr.Internal("", "failed to count participants", err)
		}
		if count > 0 {
			return apierr.Forbidden(apierr.ReasonParticipantsPresent, "Activity has participants, use force to delete it")
		}
	}

	if err := s.activities.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.NotFound("Activity not found")
		}
		return apierr.Internal("", "failed to delete activity", err)
	}
	return nil
}

// Join makes identity a participant of the activity.
func (s *ActivityService) Join(ctx context.Context, identity types.User, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	err := s.memberships.Add(ctx, types.Membership{
		UserID:     identity.ID,
		ActivityID: id,
		Role:       types.RoleParticipant,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return apierr.InvalidInput("User already joined activity", nil)
		}
		return apierr.Internal("", "failed to join activity", err)
	}
	return nil
}

// Leave drops identity's membership. Leaving an activity one never joined is a no-op.
func (s *ActivityService) Leave(ctx context.Context, identity types.User, id string) error {
	if err := s.memberships.Remove(ctx, identity.ID, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apierr.Internal("", "failed to leave activity", err)
	}
	return nil
}

// Joined lists the activities identity is a member of.
func (s *ActivityService) Joined(ctx context.Context, identity types.User) ([]types.JoinedActivity, error) {
	joined, err := s.memberships.ListJoined(ctx, identity.ID)
	if err != nil {
		return nil, apierr.Internal("", "failed to list joined activities", err)
	}
	if joined == nil {
		joined = []types.JoinedActivity{}
	}
	return joined, nil
}

// Participants pages through the roster. Members only.
func (s *ActivityService) Participants(ctx context.Context, identity types.User, id string, page PageRequest) (types.Page[types.Participant], error) {
	if _, err := s.Get(ctx, id); err != nil {
		return types.Page[types.Participant]{}, err
	}
	if _, err := s.permissions.AssertParticipant(ctx, identity, id); err != nil {
		return types.Page[types.Participant]{}, err
	}

	items, total, err := s.memberships.ListParticipants(ctx, id, page.offset(), page.Size)
	if err != nil {
		return types.Page[types.Participant]{}, apierr.Internal("", "failed to list participants", err)
	}
	return types.NewPage(items, page.Page, page.Size, total), nil
}

// AddComment posts a comment on the activity. Members only.
func (s *ActivityService) AddComment(ctx context.Context, identity types.User, id, body string) (types.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" || len([]rune(body)) > maxCommentLength {
		return types.Comment{}, apierr.InvalidInput("Invalid comment", map[string][]string{
			"comment": {"must be between 1 and 1000 characters"},
		})
	}
	if _, err := s.Get(ctx, id); err != nil {
		return types.Comment{}, err
	}
	if _, err := s.permissions.AssertParticipant(ctx, identity, id); err != nil {
		return types.Comment{}, err
	}

	comment, err := s.comments.Create(ctx, types.Comment{
		ActivityID: id,
		UserID:     identity.ID,
		Username:   identity.Username,
		Body:       body,
	})
	if err != nil {
		return types.Comment{}, apierr.Internal("", "failed to create comment", err)
	}
	return comment, nil
}

// Comments pages through an activity's comments, newest first. Members only.
func (s *ActivityService) Comments(ctx context.Context, identity types.User, id string, page PageRequest) (types.Page[types.Comment], error) {
	if _, err := s.Get(ctx, id); err != nil {
		return types.Page[types.Comment]{}, err
	}
	if _, err := s.permissions.AssertParticipant(ctx, identity, id); err != nil {
		return types.Page[types.Comment]{}, err
	}

	items, total, err := s.comments.ListByActivity(ctx, id, page.offset(), page.Size)
	if err != nil {
		return types.Page[types.Comment]{}, apierr.Internal("", "failed to list comments", err)
	}
	return types.NewPage(items, page.Page, page.Size, total), nil
}

func (s *ActivityService) validate(req ActivityRequest) (types.Activity, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Location = strings.TrimSpace(req.Location)

	fields := map[string][]string{}
	if err := req.ActivityInput.Validate(); err != nil {
		inputFields, ok := validationFields(err)
		if !ok {
			return types.Activity{}, apierr.Internal("", "validation failed", err)
		}
		fields = inputFields
	}

	now := s.now()
	switch {
	case req.StartTime.IsZero():
		fields["startDateTime"] = append(fields["startDateTime"], "cannot be blank")
	case req.StartTime.Before(now):
		fields["startDateTime"] = append(fields["startDateTime"], "must not be in the past")
	}
	switch {
	case req.EndTime.IsZero():
		fields["endDateTime"] = append(fields["endDateTime"], "cannot be blank")
	case req.EndTime.Before(now):
		fields["endDateTime"] = append(fields["endDateTime"], "must not be in the past")
	case !req.StartTime.IsZero() && !req.EndTime.After(req.StartTime):
		fields["endDateTime"] = append(fields["endDateTime"], "must be after the start time")
	}

	if len(fields) > 0 {
		return types.Activity{}, apierr.InvalidInput("Invalid activity", fields)
	}
	return types.Activity{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
	}, nil
}

func activityNameExists() error {
	return apierr.InvalidInput("Activity name exists", map[string][]string{
		"name": {"an activity with this name already exists"},
	})
}
