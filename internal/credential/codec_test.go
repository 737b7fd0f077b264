package credential

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	codec, err := NewCodec("secret", WithClock(fixedClock(now)))
	require.NoError(t, err)

	token, issued, err := codec.Issue("gold", PermReadWrite, DefaultTTL)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "gold", got.Scope)
	assert.Equal(t, PermReadWrite, got.Permission)
	assert.Equal(t, issued.ID, got.ID)
	assert.True(t, got.ExpiresAt.Equal(now.Add(DefaultTTL)))
}

func TestIssueDefaultsToWildcardScope(t *testing.T) {
	codec, err := NewCodec("secret")
	require.NoError(t, err)

	token, _, err := codec.Issue("", PermRead, time.Hour)
	require.NoError(t, err)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, WildcardScope, got.Scope)
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := now
	codec, err := NewCodec("secret", WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	token, _, err := codec.Issue("*", PermRead, time.Hour)
	require.NoError(t, err)

	clock = now.Add(2 * time.Hour)
	_, err = codec.Verify(token)
	require.ErrorIs(t, err, ErrInvalidCredential)
	assert.Contains(t, err.Error(), "expired")
}

func TestZeroLifetimeIsRejected(t *testing.T) {
	codec, err := NewCodec("secret")
	require.NoError(t, err)

	token, _, err := codec.Issue("*", PermReadWriteDelete, 0)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer, err := NewCodec("one")
	require.NoError(t, err)
	verifier, err := NewCodec("two")
	require.NoError(t, err)

	token, _, err := issuer.Issue("*", PermRead, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	codec, err := NewCodec("secret")
	require.NoError(t, err)

	token, _, err := codec.Issue("gold", PermRead, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	other, _, err := codec.Issue("*", PermReadWriteDelete, time.Hour)
	require.NoError(t, err)
	parts[1] = strings.Split(other, ".")[1]

	_, err = codec.Verify(strings.Join(parts, "."))
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec, err := NewCodec("secret")
	require.NoError(t, err)

	for _, token := range []string{"", "abc", "a.b.c"} {
		_, err := codec.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidCredential, "token %q", token)
	}
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec("")
	require.ErrorIs(t, err, ErrSigningKey)
}

func TestIssueRejectsBadPermission(t *testing.T) {
	codec, err := NewCodec("secret")
	require.NoError(t, err)

	_, _, err = codec.Issue("*", Permission(3), time.Hour)
	require.Error(t, err)
	_, _, err = codec.Issue("*", PermRead, -time.Second)
	require.Error(t, err)
	_, _, err = codec.Issue("*", PermRead, (MaxLifetimeDays+1)*24*time.Hour)
	require.Error(t, err)
}

func TestLifetimeDays(t *testing.T) {
	ttl, err := LifetimeDays(30)
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, ttl)

	ttl, err = LifetimeDays(MaxLifetimeDays)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(MaxLifetimeDays)*24*time.Hour, ttl)

	for _, days := range []int{-1, MaxLifetimeDays + 1, 200000, 1 << 30} {
		_, err := LifetimeDays(days)
		assert.Error(t, err, days)
	}
}

func TestCovers(t *testing.T) {
	cases := []struct {
		name     string
		cred     Credential
		scope    string
		required Permission
		want     bool
	}{
		{"wildcard read", Credential{Scope: "*", Permission: PermRead}, "gold", PermRead, true},
		{"wildcard insufficient", Credential{Scope: "*", Permission: PermRead}, "gold", PermReadWrite, false},
		{"exact scope", Credential{Scope: "gold", Permission: PermReadWrite}, "gold", PermReadWrite, true},
		{"other scope", Credential{Scope: "gold", Permission: PermReadWriteDelete}, "exchange_rate", PermRead, false},
		{"higher level", Credential{Scope: "gold", Permission: PermReadWriteDelete}, "gold", PermReadWrite, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cred.Covers(tc.scope, tc.required))
		})
	}
}
