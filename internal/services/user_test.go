package services

import (
	"context"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngDataURI(payload string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestUpdateAvatarStoresImage(t *testing.T) {
	logger, _ := test.NewNullLogger()
	users := newMemUsers()
	avatars := newMemAvatars()
	svc := NewUserService(users, avatars, logger)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	user := users.put(types.User{Username: "amy", AccountState: types.AccountVerified})

	updated, err := svc.UpdateAvatar(ctx, user, pngDataURI("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "avatars/"+user.ID+".png", updated.AvatarKey)
	require.NotNil(t, updated.AvatarUpdatedAt)
	assert.Equal(t, fixed, *updated.AvatarUpdatedAt)

	obj, err := svc.OpenAvatar(ctx, user.ID)
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", obj.ContentType)

	jpeg := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	updated, err = svc.UpdateAvatar(ctx, updated, jpeg)
	require.NoError(t, err)
	assert.Equal(t, "avatars/"+user.ID+".jpg", updated.AvatarKey)
	assert.False(t, avatars.has("avatars/"+user.ID+".png"))
	assert.True(t, avatars.has(updated.AvatarKey))
}

func TestUpdateAvatarRejectsBadInput(t *testing.T) {
	logger, _ := test.NewNullLogger()
	users := newMemUsers()
	svc := NewUserService(users, newMemAvatars(), logger)
	user := users.put(types.User{Username: "amy"})

	_, err := svc.UpdateAvatar(context.Background(), user, "data:image/gif;base64,R0lGOD==")
	apiErr := requireAPIError(t, err, apierr.KindUnsupported)
	assert.Equal(t, apierr.CodeUnsupportedMediaType, apiErr.Code)

	_, err = svc.UpdateAvatar(context.Background(), user, "data:image/png;base64,====")
	requireAPIError(t, err, apierr.KindInvalidInput)
}

func TestUpdateAvatarWithoutStorage(t *testing.T) {
	logger, _ := test.NewNullLogger()
	users := newMemUsers()
	svc := NewUserService(users, nil, logger)
	user := users.put(types.User{Username: "amy"})

	_, err := svc.UpdateAvatar(context.Background(), user, pngDataURI("x"))
	apiErr := requireAPIError(t, err, apierr.KindUnsupported)
	assert.Equal(t, apierr.CodeUnsupportedOperation, apiErr.Code)

	_, err = svc.OpenAvatar(context.Background(), user.ID)
	requireAPIError(t, err, apierr.KindNotFound)
}

func TestUpdateAvatarStorageFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	users := newMemUsers()
	avatars := newMemAvatars()
	avatars.putErr = errBoom
	svc := NewUserService(users, avatars, logger)
	user := users.put(types.User{Username: "amy"})

	_, err := svc.UpdateAvatar(context.Background(), user, pngDataURI("x"))
	requireAPIError(t, err, apierr.KindInternal)

	stored, err := users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.AvatarKey)
}

func TestOpenAvatarMissing(t *testing.T) {
	logger, _ := test.NewNullLogger()
	users := newMemUsers()
	svc := NewUserService(users, newMemAvatars(), logger)
	user := users.put(types.User{Username: "amy"})

	_, err := svc.OpenAvatar(context.Background(), user.ID)
	requireAPIError(t, err, apierr.KindNotFound)

	_, err = svc.OpenAvatar(context.Background(), "missing")
	requireAPIError(t, err, apierr.KindNotFound)
}

func TestGetUserByID(t *testing.T) {
	logger, _ := test.NewNullLogger()
	users := newMemUsers()
	svc := NewUserService(users, nil, logger)
	user := users.put(types.User{Username: "amy"})

	got, err := svc.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "amy", got.Username)

	_, err = svc.GetByID(context.Background(), "missing")
	requireAPIError(t, err, apierr.KindNotFound)
}
