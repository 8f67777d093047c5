package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/internal/services"
	"github.com/getactive/apiserver/types"
)

// ActivityService is the activity functionality used by ActivityHandler.
type ActivityService interface {
	Create(ctx context.Context, identity types.User, req services.ActivityRequest) (types.Activity, error)
	Get(ctx context.Context, id string) (types.Activity, error)
	List(ctx context.Context, nameFilter string, page services.PageRequest) (types.Page[types.Activity], error)
	Update(ctx context.Context, identity types.User, id string, req services.ActivityRequest) (types.Activity, error)
	Delete(ctx context.Context, identity types.User, id string, force bool) error
	Join(ctx context.Context, identity types.User, id string) error
	Leave(ctx context.Context, identity types.User, id string) error
	Joined(ctx context.Context, identity types.User) ([]types.JoinedActivity, error)
	Participants(ctx context.Context, identity types.User, id string, page services.PageRequest) (types.Page[types.Participant], error)
	AddComment(ctx context.Context, identity types.User, id, body string) (types.Comment, error)
	Comments(ctx context.Context, identity types.User, id string, page services.PageRequest) (types.Page[types.Comment], error)
}

// ActivityHandler provides HTTP handlers for activities.
type ActivityHandler struct {
	activities ActivityService
	logger     logrus.FieldLogger
}

func NewActivityHandler(activities ActivityService, logger logrus.FieldLogger) *ActivityHandler {
	return &ActivityHandler{activities: activities, logger: logger}
}

// ActivityRouter registers activity routes. Every route requires a verified identity.
func ActivityRouter(r chi.Router, handler *ActivityHandler, requireVerified func(http.Handler) http.Handler) {
	r.Use(requireVerified)

	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Route("/{activityID}", func(r chi.Router) {
		r.Use(requireUUIDParam("activityID", "Activity not found", handler.logger))

		r.Get("/", handler.Get)
		r.Put("/", handler.Update)
		r.Delete("/", handler.Delete)

		r.Get("/participants", handler.Participants)
		r.Post("/participants", handler.Join)
		r.Delete("/participants", handler.Leave)

		r.Get("/comments", handler.Comments)
		r.Post("/comments", handler.AddComment)
	})
}

type CommentRequest struct {
	Comment string `json:"comment"`
}

func activityID(r *http.Request) string {
	return chi.URLParam(r, "activityID")
}

func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageRequest(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.activities.List(r.Context(), r.URL.Query().Get("name"), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, withPageLinks(r, result))
}

func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req services.ActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	activity, err := h.activities.Create(r.Context(), identity, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, activity)
}

func (h *ActivityHandler) Get(w http.ResponseWriter, r *http.Request) {
	activity, err := h.activities.Get(r.Context(), activityID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, activity)
}

func (h *ActivityHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req services.ActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	activity, err := h.activities.Update(r.Context(), identity, activityID(r), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, activity)
}

func (h *ActivityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	force := false
	if raw := strings.TrimSpace(r.URL.Query().Get("force")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, h.logger, apierr.InvalidInput("Invalid force parameter", map[string][]string{
				"force": {"must be true or false"},
			}))
			return
		}
		force = parsed
	}

	if err := h.activities.Delete(r.Context(), identity, activityID(r), force); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ActivityHandler) Join(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	if err := h.activities.Join(r.Context(), identity, activityID(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ActivityHandler) Leave(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	if err := h.activities.Leave(r.Context(), identity, activityID(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ActivityHandler) Participants(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	page, err := parsePageRequest(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.activities.Participants(r.Context(), identity, activityID(r), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, withPageLinks(r, result))
}

func (h *ActivityHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	comment, err := h.activities.AddComment(r.Context(), identity, activityID(r), req.Comment)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, comment)
}

func (h *ActivityHandler) Comments(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	page, err := parsePageRequest(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.activities.Comments(r.Context(), identity, activityID(r), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, withPageLinks(r, result))
}
