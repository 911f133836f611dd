package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecheck/telecheck-api/internal/auth"
	"github.com/telecheck/telecheck-api/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestTokenSign(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")

	token, err := run(t, "token", "sign", "--sub", "u1", "--email", "u1@telecheck.local", "--role", "doctor", "--ttl", "5m")
	require.NoError(t, err)

	claims, err := auth.NewTokenManager("cli-secret", time.Hour).ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, domain.RoleDoctor, claims.Role)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTokenSignRequiresSubject(t *testing.T) {
	_, err := run(t, "token", "sign")
	assert.ErrorContains(t, err, "--sub")
}

func TestTokenMock(t *testing.T) {
	token, err := run(t, "token", "mock", "--sub", "n1", "--role", "nurse")
	require.NoError(t, err)

	envelope, err := auth.NewMockEnvelopeValidator(nil).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "n1", envelope.SubjectID)
	assert.Equal(t, domain.RoleNurse, envelope.Role)
	assert.Nil(t, envelope.ExpiresAt)
}

func TestTokenMockRequiresIdentity(t *testing.T) {
	_, err := run(t, "token", "mock", "--role", "nurse")
	assert.Error(t, err)
}

func TestConfigCheckReportsStrictMode(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_STRICT_PRODUCTION", "")
	t.Setenv("AUTH_JWT_SECRET", "")

	out, err := run(t, "config", "check")

	assert.ErrorContains(t, err, "strict production")
	assert.Contains(t, out, "strict production:     true")
	assert.Contains(t, out, "validators:            signed")
	assert.Contains(t, out, "missing token granted: false")
}
