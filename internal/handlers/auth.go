package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/getactive/apiserver/internal/services"
)

// AuthService is the authentication core used by AuthHandler.
type AuthService interface {
	Login(ctx context.Context, username, password string) (services.LoginResult, error)
	Register(ctx context.Context, input services.RegisterInput) (string, error)
	ConfirmRegistration(ctx context.Context, confirmationToken string) (services.ConfirmationStatus, error)
	ResendConfirmation(ctx context.Context, email, username string) error
}

// AuthHandler provides login and registration endpoints.
type AuthHandler struct {
	auth        AuthService
	exposeToken bool
	logger      logrus.FieldLogger
}

// NewAuthHandler constructs an AuthHandler. When exposeToken is set the
// confirmation token is echoed in the register response.
func NewAuthHandler(auth AuthService, exposeToken bool, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{auth: auth, exposeToken: exposeToken, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/login", handler.Login)
	r.Route("/register", func(r chi.Router) {
		r.Post("/", handler.Register)
		r.Post("/confirm", handler.ConfirmRegistration)
		r.Post("/resend", handler.ResendConfirmation)
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token           string     `json:"token"`
	UserID          string     `json:"userId"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Avatar          string     `json:"avatar,omitempty"`
	AvatarUpdatedAt *time.Time `json:"avatarUpdatedAt,omitempty"`
}

type RegisterResponse struct {
	Status services.ConfirmationStatus `json:"status"`
	Token  string                      `json:"token,omitempty"`
}

type ConfirmRequest struct {
	Token string `json:"token"`
}

type ConfirmResponse struct {
	Status services.ConfirmationStatus `json:"status"`
}

type ResendRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusOK, LoginResponse{
		Token:           result.Token,
		UserID:          result.User.ID,
		Username:        result.User.Username,
		Email:           result.User.Email,
		Avatar:          avatarURL(result.User),
		AvatarUpdatedAt: result.User.AvatarUpdatedAt,
	})
}

// Register opens an unverified account and mails a confirmation token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	confirmationToken, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := RegisterResponse{Status: services.ConfirmationSuccess}
	if h.exposeToken {
		resp.Token = confirmationToken
	}
	writeData(w, http.StatusCreated, resp)
}

// ConfirmRegistration verifies the account named by the token. The token is
// read from the body or, failing that, the token query parameter.
func (h *AuthHandler) ConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	if strings.TrimSpace(req.Token) == "" {
		req.Token = r.URL.Query().Get("token")
	}

	status, err := h.auth.ConfirmRegistration(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, ConfirmResponse{Status: status})
}

// ResendConfirmation mails a new confirmation token. It always answers 204,
// whether or not an account matched; failures are only logged.
func (h *AuthHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusNoContent)

	logger := h.logger.WithField("request_id", middleware.GetReqID(r.Context()))

	var req ResendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.WithError(err).Debug("ignoring unreadable resend request")
		return
	}

	if err := h.auth.ResendConfirmation(r.Context(), req.Email, req.Username); err != nil {
		logger.WithError(err).Error("failed to resend confirmation")
	}
}
