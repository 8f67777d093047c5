package services

import (
	"context"
	"testing"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/types"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lostRaceAccounts struct {
	*memUsers
}

func (lostRaceAccounts) TransitionAccountState(context.Context, string, types.AccountState, types.AccountState) (bool, error) {
	return false, nil
}

func TestAccountStateMachineConfirm(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	users := newMemUsers()
	sm := NewAccountStateMachine(users, logger)
	ctx := context.Background()

	users.put(types.User{Username: "amy", AccountState: types.AccountUnverified})

	require.NoError(t, sm.Confirm(ctx, "amy"))
	user, err := users.GetByUsername(ctx, "amy")
	require.NoError(t, err)
	assert.Equal(t, types.AccountVerified, user.AccountState)
	assert.Equal(t, "account verified", hook.LastEntry().Message)

	require.NoError(t, sm.Confirm(ctx, "amy"))
	assert.Equal(t, "account already verified", hook.LastEntry().Message)
}

func TestAccountStateMachineConfirmUnknownUser(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sm := NewAccountStateMachine(newMemUsers(), logger)

	err := sm.Confirm(context.Background(), "ghost")
	apiErr := requireAPIError(t, err, apierr.KindInvalidToken)
	assert.Equal(t, apierr.CodeTokenInvalid, apiErr.Code)
}

func TestAccountStateMachineConfirmLostRace(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	users := newMemUsers()
	users.put(types.User{Username: "amy", AccountState: types.AccountUnverified})
	sm := NewAccountStateMachine(lostRaceAccounts{users}, logger)

	require.NoError(t, sm.Confirm(context.Background(), "amy"))
	assert.Equal(t, "account verified concurrently", hook.LastEntry().Message)
}

func TestAccountStateMachineUnknownState(t *testing.T) {
	logger, hook := test.NewNullLogger()
	users := newMemUsers()
	locked := users.put(types.User{Username: "amy", AccountState: "LOCKED"})
	sm := NewAccountStateMachine(users, logger)

	err := sm.Confirm(context.Background(), "amy")
	apiErr := requireAPIError(t, err, apierr.KindInternal)
	assert.Equal(t, apierr.CodeUnknownAccountState, apiErr.Code)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	err = sm.AssertVerified(locked)
	apiErr = requireAPIError(t, err, apierr.KindInternal)
	assert.Equal(t, apierr.CodeUnknownAccountState, apiErr.Code)
}

func TestAssertVerified(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sm := NewAccountStateMachine(newMemUsers(), logger)

	assert.NoError(t, sm.AssertVerified(types.User{AccountState: types.AccountVerified}))

	err := sm.AssertVerified(types.User{AccountState: types.AccountUnverified})
	apiErr := requireAPIError(t, err, apierr.KindAccountNotVerified)
	assert.Equal(t, 403, apiErr.Status())
	assert.Contains(t, apiErr.Fields, "accountState")
}
