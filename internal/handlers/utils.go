package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/internal/services"
	"github.com/getactive/apiserver/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 4 << 20
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// withIdentity attaches identity to ctx. An identity already present is kept.
func withIdentity(ctx context.Context, identity types.User) context.Context {
	if _, ok := IdentityFromContext(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, contextIdentityKey, identity)
}

// IdentityFromContext returns the identity resolved for the current request.
func IdentityFromContext(ctx context.Context) (types.User, bool) {
	identity, ok := ctx.Value(contextIdentityKey).(types.User)
	return identity, ok
}

// DataResponse is the envelope of every successful JSON response.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the envelope of every error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Status           int                 `json:"status"`
	ErrorCode        apierr.Code         `json:"errorCode"`
	Message          string              `json:"message"`
	DebugMessage     string              `json:"debugMessage,omitempty"`
	ValidationErrors map[string][]string `json:"validationErrors,omitempty"`
	Timestamp        time.Time           `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeData(w http.ResponseWriter, status int, value any) {
	writeJSON(w, status, DataResponse{Data: value})
}

// writeError renders err as an ErrorResponse. Errors that are not an
// *apierr.Error are reported as internal errors without leaking their text.
func writeError(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal("", "Internal server error", err)
	}
	status := apiErr.Status()

	entry := logger.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
		"code":       apiErr.Code,
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error(apiErr.Message)
	} else {
		entry.WithField("status", status).Debug(apiErr.Message)
	}

	writeJSON(w, status, ErrorResponse{Error: ErrorBody{
		Status:           status,
		ErrorCode:        apiErr.Code,
		Message:          apiErr.Message,
		DebugMessage:     apiErr.Debug,
		ValidationErrors: apiErr.Fields,
		Timestamp:        time.Now().UTC(),
	}})
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierr.InvalidInput("Request body is required", nil)
		}
		return apierr.InvalidInput("Malformed request body", map[string][]string{"body": {err.Error()}})
	}
	return nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// parsePageRequest reads the zero-based page and size query parameters.
func parsePageRequest(r *http.Request) (services.PageRequest, error) {
	page := services.PageRequest{Page: 0, Size: defaultPageSize}
	fields := map[string][]string{}

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields["page"] = []string{"must be a non-negative integer"}
		}
		page.Page = n
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields["size"] = []string{"must be a positive integer"}
		}
		page.Size = n
	}
	if len(fields) > 0 {
		return services.PageRequest{}, apierr.InvalidInput("Invalid pagination parameters", fields)
	}

	if page.Size > maxPageSize {
		page.Size = maxPageSize
	}
	if page.Page > math.MaxInt/page.Size {
		return services.PageRequest{}, apierr.InvalidInput("Invalid pagination parameters", map[string][]string{
			"page": {"is out of range"},
		})
	}
	return page, nil
}

// requireUUIDParam answers 404 with notFound when the URL parameter param is
// not a uuid. Every resource id is a uuid, so no such resource can exist.
func requireUUIDParam(param, notFound string, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := uuid.Parse(chi.URLParam(r, param)); err != nil {
				writeError(w, r, logger, apierr.NotFound(notFound))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withPageLinks fills the next and previous page URLs relative to the
// current request.
func withPageLinks[T any](r *http.Request, page types.Page[T]) types.Page[T] {
	link := func(n int) string {
		u := *r.URL
		q := u.Query()
		q.Set("page", strconv.Itoa(n))
		q.Set("size", strconv.Itoa(page.Size))
		u.RawQuery = q.Encode()
		return u.RequestURI()
	}
	if !page.Last {
		page.NextPageURL = link(page.Page + 1)
	}
	if !page.First {
		page.PreviousPageURL = link(page.Page - 1)
	}
	return page
}
