package services

import (
	"context"
	"errors"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/internal/store"
	"github.com/getactive/apiserver/types"
)

// MembershipReader looks up a single activity membership.
type MembershipReader interface {
	Get(ctx context.Context, userID, activityID string) (types.Membership, error)
}

// PermissionEvaluator decides what an identity may do with an activity.
// Ownership is defined only by the ADMIN membership role.
type PermissionEvaluator struct {
	memberships MembershipReader
}

func NewPermissionEvaluator(memberships MembershipReader) *PermissionEvaluator {
	return &PermissionEvaluator{memberships: memberships}
}

// AssertAuthorizedToMutate succeeds only for ADMIN members of the activity.
func (p *PermissionEvaluator) AssertAuthorizedToMutate(ctx context.Context, identity types.User, activityID string) error {
	membership, err := p.AssertParticipant(ctx, identity, activityID)
	if err != nil {
		return err
	}
	if membership.Role != types.RoleAdmin {
		return apierr.Forbidden(apierr.ReasonNotAdmin, "Only admin can update the activity")
	}
	return nil
}

// AssertParticipant succeeds for any member of the activity and returns the membership.
func (p *PermissionEvaluator) AssertParticipant(ctx context.Context, identity types.User, activityID string) (types.Membership, error) {
	membership, err := p.memberships.Get(ctx, identity.ID, activityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Membership{}, apierr.Forbidden(apierr.ReasonNoMembership, "User is not a participant of this activity")
		}
		return types.Membership{}, apierr.Internal("", "failed to check activity membership", err)
	}
	return membership, nil
}
