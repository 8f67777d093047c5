package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/internal/storage"
	"github.com/getactive/apiserver/types"
)

// UserService is the profile functionality used by UserHandler.
type UserService interface {
	UpdateAvatar(ctx context.Context, identity types.User, dataURI string) (types.User, error)
	OpenAvatar(ctx context.Context, userID string) (storage.Object, error)
}

// UserHandler serves the caller's profile and avatars.
type UserHandler struct {
	users      UserService
	activities ActivityService
	logger     logrus.FieldLogger
}

func NewUserHandler(users UserService, activities ActivityService, logger logrus.FieldLogger) *UserHandler {
	return &UserHandler{users: users, activities: activities, logger: logger}
}

// UserRouter registers user routes. requireAuth and requireVerified guard
// the profile and membership routes respectively.
func UserRouter(r chi.Router, handler *UserHandler, requireAuth, requireVerified func(http.Handler) http.Handler) {
	r.With(requireAuth).Get("/me", handler.Me)
	r.With(requireAuth).Put("/me/avatar", handler.UpdateAvatar)
	r.With(requireVerified).Get("/me/activities", handler.JoinedActivities)
	r.With(requireAuth, requireUUIDParam("userID", "Avatar not found", handler.logger)).Get("/{userID}/avatar", handler.Avatar)
}

// UserResponse is a user together with its avatar URL.
type UserResponse struct {
	types.User
	Avatar string `json:"avatar,omitempty"`
}

type AvatarRequest struct {
	AvatarData string `json:"avatarData"`
}

type AvatarResponse struct {
	Avatar          string     `json:"avatar"`
	AvatarUpdatedAt *time.Time `json:"avatarUpdatedAt"`
}

func avatarURL(user types.User) string {
	if user.AvatarKey == "" {
		return ""
	}
	return "/v1/users/" + user.ID + "/avatar"
}

// Me returns the current identity.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apierr.Unauthenticated())
		return
	}
	writeData(w, http.StatusOK, UserResponse{User: identity, Avatar: avatarURL(identity)})
}

// UpdateAvatar replaces the caller's avatar with a data URI image.
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apierr.Unauthenticated())
		return
	}

	var req AvatarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	updated, err := h.users.UpdateAvatar(r.Context(), identity, req.AvatarData)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, AvatarResponse{Avatar: avatarURL(updated), AvatarUpdatedAt: updated.AvatarUpdatedAt})
}

// Avatar streams the stored avatar image of a user.
func (h *UserHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	obj, err := h.users.OpenAvatar(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.WithError(err).Warn("failed to stream avatar")
	}
}

// JoinedActivities lists the activities the caller is a member of.
func (h *UserHandler) JoinedActivities(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	joined, err := h.activities.Joined(r.Context(), identity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, joined)
}
