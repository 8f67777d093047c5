package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/internal/storage"
	"github.com/getactive/apiserver/internal/store"
	"github.com/getactive/apiserver/types"
	"github.com/sirupsen/logrus"
)

const maxAvatarBytes = 2 << 20

// AvatarStore is the object storage holding avatar images.
type AvatarStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// UserService encapsulates user profile use-cases.
type UserService struct {
	repo    UserRepository
	avatars AvatarStore
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewUserService builds a UserService. avatars may be nil when no object
// storage is configured, in which case avatar uploads are rejected.
func NewUserService(repo UserRepository, avatars AvatarStore, logger logrus.FieldLogger) *UserService {
	return &UserService{repo: repo, avatars: avatars, logger: logger, now: time.Now}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apierr.NotFound("User not found")
		}
		return types.User{}, apierr.Internal("", "failed to load user", err)
	}
	return user, nil
}

// UpdateAvatar stores a data URI image as identity's avatar.
func (s *UserService) UpdateAvatar(ctx context.Context, identity types.User, dataURI string) (types.User, error) {
	if s.avatars == nil {
		return types.User{}, apierr.Unsupported(apierr.CodeUnsupportedOperation, "Avatar storage is not configured")
	}

	match := avatarDataPattern.FindStringSubmatch(dataURI)
	if match == nil {
		return types.User{}, apierr.Unsupported(apierr.CodeUnsupportedMediaType, "Avatar must be a base64 encoded jpeg or png data URI")
	}
	format, encoded := match[1], match[2]

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return types.User{}, apierr.InvalidInput("Invalid avatar data", map[string][]string{"avatarData": {"must be valid base64"}})
	}
	if len(data) == 0 || len(data) > maxAvatarBytes {
		return types.User{}, apierr.InvalidInput("Invalid avatar data", map[string][]string{"avatarData": {"must be between 1 byte and 2MiB"}})
	}

	ext := "png"
	if format == "jpeg" {
		ext = "jpg"
	}
	key := fmt.Sprintf("avatars/%s.%s", identity.ID, ext)

	if err := s.avatars.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "image/"+format); err != nil {
		return types.User{}, apierr.Internal("", "failed to store avatar", err)
	}

	updatedAt := s.now().UTC()
	if err := s.repo.UpdateAvatar(ctx, identity.ID, key, updatedAt); err != nil {
		return types.User{}, apierr.Internal("", "failed to update avatar", err)
	}

	if identity.AvatarKey != "" && identity.AvatarKey != key {
		if err := s.avatars.Delete(ctx, identity.AvatarKey); err != nil {
			s.logger.WithError(err).WithField("key", identity.AvatarKey).Warn("failed to delete previous avatar")
		}
	}

	identity.AvatarKey = key
	identity.AvatarUpdatedAt = &updatedAt
	return identity, nil
}

// OpenAvatar returns the avatar image of the user with the given id.
// The caller closes the returned body.
func (s *UserService) OpenAvatar(ctx context.Context, userID string) (storage.Object, error) {
	if s.avatars == nil {
		return storage.Object{}, apierr.NotFound("Avatar not found")
	}
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return storage.Object{}, err
	}
	if user.AvatarKey == "" {
		return storage.Object{}, apierr.NotFound("Avatar not found")
	}

	obj, err := s.avatars.Get(ctx, user.AvatarKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.Object{}, apierr.NotFound("Avatar not found")
		}
		return storage.Object{}, apierr.Internal("", "failed to load avatar", err)
	}
	return obj, nil
}
