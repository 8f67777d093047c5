package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/internal/store"
	"github.com/getactive/apiserver/types"
	"github.com/sirupsen/logrus"
)

// AccountRepository is the persistence needed by AccountStateMachine.
type AccountRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	TransitionAccountState(ctx context.Context, id string, from, to types.AccountState) (bool, error)
}

// AccountStateMachine owns the UNVERIFIED -> VERIFIED transition.
type AccountStateMachine struct {
	accounts AccountRepository
	logger   logrus.FieldLogger
}

func NewAccountStateMachine(accounts AccountRepository, logger logrus.FieldLogger) *AccountStateMachine {
	return &AccountStateMachine{accounts: accounts, logger: logger}
}

// Confirm verifies the account of username. Confirming a verified account
// is a no-op.
func (m *AccountStateMachine) Confirm(ctx context.Context, username string) error {
	user, err := m.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.InvalidToken(
				"Invalid registration token provided, unknown user "+username,
				"",
			)
		}
		return apierr.Internal("", "failed to load account", err)
	}

	switch user.AccountState {
	case types.AccountVerified:
		m.logger.WithField("username", username).Debug("account already verified")
		return nil
	case types.AccountUnverified:
		moved, err := m.accounts.TransitionAccountState(ctx, user.ID, types.AccountUnverified, types.AccountVerified)
		if err != nil {
			return apierr.Internal("", "failed to verify account", err)
		}
		if !moved {
			// Lost a race with another confirmation of the same account.
			m.logger.WithField("username", username).Debug("account verified concurrently")
			return nil
		}
		m.logger.WithField("username", username).Info("account verified")
		return nil
	default:
		return m.unknownState(user)
	}
}

// AssertVerified fails unless identity has confirmed its registration.
func (m *AccountStateMachine) AssertVerified(identity types.User) error {
	switch identity.AccountState {
	case types.AccountVerified:
		return nil
	case types.AccountUnverified:
		return apierr.AccountNotVerified()
	default:
		return m.unknownState(identity)
	}
}

func (m *AccountStateMachine) unknownState(user types.User) error {
	m.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"state":   user.AccountState,
	}).Error("account is in an unknown state")
	return apierr.Internal(
		apierr.CodeUnknownAccountState,
		"Account is in an unknown state",
		fmt.Errorf("account %s has state %q", user.ID, user.AccountState),
	)
}
