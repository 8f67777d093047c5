package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want int
	}{
		{"invalid input", InvalidInput("bad", nil), http.StatusBadRequest},
		{"invalid token", InvalidToken("bad token", ""), http.StatusBadRequest},
		{"expired token", ExpiredToken("expired", ""), http.StatusBadRequest},
		{"bad credentials", BadCredentials(), http.StatusUnauthorized},
		{"unauthenticated", Unauthenticated(), http.StatusUnauthorized},
		{"not verified", AccountNotVerified(), http.StatusForbidden},
		{"duplicate", DuplicateAccount("taken", ""), http.StatusBadRequest},
		{"forbidden", Forbidden(ReasonNotAdmin, "Only admin can update the activity"), http.StatusForbidden},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"internal", Internal("", "boom", nil), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Status())
		})
	}
}

func TestAccountNotVerifiedHasDistinctCode(t *testing.T) {
	notVerified := AccountNotVerified()
	forbidden := Forbidden(ReasonNoMembership, "User is not a participant of this activity")

	assert.Equal(t, notVerified.Status(), forbidden.Status())
	assert.NotEqual(t, notVerified.Code, forbidden.Code)
	assert.Equal(t, []string{"User has not verified their account"}, notVerified.Fields["accountState"])
}

func TestForbiddenParticipantsPresentCode(t *testing.T) {
	err := Forbidden(ReasonParticipantsPresent, "Activity has participants")
	assert.Equal(t, CodeParticipantsPresent, err.Code)
	assert.Equal(t, ReasonParticipantsPresent, err.Reason)
}

func TestKindOfThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("confirm: %w", ExpiredToken("expired", "Token expired at noon"))

	assert.Equal(t, KindExpiredToken, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindExpiredToken))
	assert.False(t, IsKind(wrapped, KindInvalidToken))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestInternalUnwrap(t *testing.T) {
	cause := errors.New("db down")
	err := Internal("", "failed to load user", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInternalServerError, err.Code)
	assert.Contains(t, err.Error(), "db down")
}
