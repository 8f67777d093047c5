package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec("test-secret-key-that-is-long-enough", nil)
	require.NoError(t, err)
	return codec
}

func TestIssueAndDecodeRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	for _, subject := range []string{"alice", "bob_2", "ünïcode"} {
		tok, err := codec.Issue(subject, PurposeNone, time.Hour)
		require.NoError(t, err)

		claims, err := codec.DecodeAndVerify(tok)
		require.NoError(t, err)
		assert.Equal(t, subject, claims.Subject)
		assert.Equal(t, PurposeNone, claims.Purpose)
		assert.NotEmpty(t, claims.ID)
	}
}

func TestIssueRejectsBlankSubject(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Issue("   ", PurposeNone, time.Hour)
	require.Error(t, err)
	assert.True(t, apierr.IsKind(err, apierr.KindInvalidInput))
}

func TestIssueProducesDistinctTokens(t *testing.T) {
	codec := newTestCodec(t)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return fixed }

	first, err := codec.Issue("alice", PurposeNone, time.Hour)
	require.NoError(t, err)
	second, err := codec.Issue("alice", PurposeNone, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestPurposeClaim(t *testing.T) {
	codec := newTestCodec(t)

	tok, err := codec.Issue("alice", PurposeRegistrationConfirmation, time.Hour)
	require.NoError(t, err)

	claims, err := codec.DecodeAndVerify(tok)
	require.NoError(t, err)
	assert.Equal(t, PurposeRegistrationConfirmation, claims.Purpose)

	value, err := codec.GetClaim(tok, ClaimPurpose)
	require.NoError(t, err)
	assert.Equal(t, "REGISTRATION_CONFIRMATION", value)

	missing, err := codec.GetClaim(tok, "role")
	require.NoError(t, err)
	assert.Empty(t, missing)

	sub, err := codec.GetClaim(tok, "sub")
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestExpiredToken(t *testing.T) {
	codec := newTestCodec(t)
	issuedAt := time.Now().Add(-2 * time.Hour)
	codec.now = func() time.Time { return issuedAt }

	tok, err := codec.Issue("alice", PurposeNone, time.Hour)
	require.NoError(t, err)

	codec.now = time.Now
	_, err = codec.DecodeAndVerify(tok)
	require.Error(t, err)
	assert.True(t, apierr.IsKind(err, apierr.KindExpiredToken))

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Contains(t, apiErr.Debug, "Token expired at")

	_, err = codec.GetClaim(tok, "sub")
	assert.True(t, apierr.IsKind(err, apierr.KindExpiredToken))
}

func TestTokenValidUntilExpiry(t *testing.T) {
	codec := newTestCodec(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return start }

	tok, err := codec.Issue("alice", PurposeNone, time.Minute)
	require.NoError(t, err)

	codec.now = func() time.Time { return start.Add(59 * time.Second) }
	_, err = codec.DecodeAndVerify(tok)
	require.NoError(t, err)

	codec.now = func() time.Time { return start.Add(61 * time.Second) }
	_, err = codec.DecodeAndVerify(tok)
	assert.True(t, apierr.IsKind(err, apierr.KindExpiredToken))
}

func TestTamperedSignature(t *testing.T) {
	codec := newTestCodec(t)
	tok, err := codec.Issue("alice", PurposeNone, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := strings.Join([]string{parts[0], parts[1], string(sig)}, ".")

	_, err = codec.DecodeAndVerify(tampered)
	require.Error(t, err)
	assert.True(t, apierr.IsKind(err, apierr.KindInvalidToken))
}

func TestTamperedPayload(t *testing.T) {
	codec := newTestCodec(t)
	tok, err := codec.Issue("alice", PurposeNone, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	payload["sub"] = "mallory"
	forged, err := json.Marshal(payload)
	require.NoError(t, err)
	parts[1] = base64.RawURLEncoding.EncodeToString(forged)

	_, err = codec.DecodeAndVerify(strings.Join(parts, "."))
	require.Error(t, err)
	assert.True(t, apierr.IsKind(err, apierr.KindInvalidToken))
}

func TestWrongKeyAndMalformed(t *testing.T) {
	issuer := newTestCodec(t)
	other, err := NewCodec("a-completely-different-secret", nil)
	require.NoError(t, err)

	tok, err := issuer.Issue("alice", PurposeNone, time.Hour)
	require.NoError(t, err)

	_, err = other.DecodeAndVerify(tok)
	assert.True(t, apierr.IsKind(err, apierr.KindInvalidToken))

	for _, garbage := range []string{"", "not-a-token", "a.b.c"} {
		_, err = issuer.DecodeAndVerify(garbage)
		assert.True(t, apierr.IsKind(err, apierr.KindInvalidToken), garbage)
	}
}

func TestGeneratedKeyLogsWarning(t *testing.T) {
	logger, hook := test.NewNullLogger()

	codec, err := NewCodec("", logger)
	require.NoError(t, err)
	assert.Len(t, codec.key, generatedKeySize)

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestBase64Secret(t *testing.T) {
	raw := []byte("0123456789abcdef0123456789abcdef")
	codec, err := NewCodec("base64:"+base64.StdEncoding.EncodeToString(raw), nil)
	require.NoError(t, err)
	assert.Equal(t, raw, codec.key)

	_, err = NewCodec("base64:!!!", nil)
	assert.Error(t, err)
}
