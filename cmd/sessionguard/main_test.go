package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SmarTanom/sessionguard/internal/backendtest"
	"github.com/SmarTanom/sessionguard/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	t       *testing.T
	backend *backendtest.Server
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	backend := backendtest.New()
	backend.AddUser(session.User{Email: "demo@smartanom.com", Name: "Demo User"}, "demo-password", true)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	t.Setenv("SESSIONGUARD_BASE_URL", srv.URL)
	t.Setenv("SESSIONGUARD_STORE", "sqlite")
	t.Setenv("SESSIONGUARD_SQLITE_PATH", filepath.Join(t.TempDir(), "guard.db"))
	t.Setenv("SESSIONGUARD_PASSWORD", "")
	t.Setenv("LOG_LEVEL", "error")

	return &cliEnv{t: t, backend: backend}
}

func (e *cliEnv) run(args ...string) (int, string, string) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLILoginWhoamiLogout(t *testing.T) {
	env := newCLIEnv(t)

	code, out, errOut := env.run("login", "-email", " Demo@SmarTanom.com ", "-password", "demo-password")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "signed in as demo@smartanom.com")

	code, out, errOut = env.run("whoami")
	require.Equal(t, 0, code, errOut)
	var view struct {
		User session.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "demo@smartanom.com", view.User.Email)
	assert.Equal(t, "Demo User", view.User.Name)

	code, out, _ = env.run("logout")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "signed out")

	code, out, _ = env.run("restore")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "no session")

	code, _, errOut = env.run("whoami")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no active session")
}

func TestCLILockoutPersistsAcrossInvocations(t *testing.T) {
	env := newCLIEnv(t)

	for i := 1; i <= 4; i++ {
		code, _, errOut := env.run("login", "-email", "demo@smartanom.com", "-password", "wrong")
		require.Equal(t, 1, code)
		assert.Contains(t, errOut, "remaining)")
	}

	code, _, errOut := env.run("login", "-email", "demo@smartanom.com", "-password", "wrong")
	require.Equal(t, 1, code)
	assert.Contains(t, errOut, "Account locked due to too many failed login attempts. Please try again in ~24h.")

	code, _, errOut = env.run("login", "-email", "demo@smartanom.com", "-password", "demo-password")
	require.Equal(t, 1, code)
	assert.Contains(t, errOut, "Account locked")
	assert.Equal(t, 5, env.backend.Calls(backendtest.EndpointLogin))

	code, out, _ := env.run("lockout", "-email", "demo@smartanom.com")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "locked, 5 failed attempts")

	code, _, _ = env.run("lockout", "-email", "demo@smartanom.com", "-reset")
	require.Equal(t, 0, code)

	code, _, errOut = env.run("login", "-email", "demo@smartanom.com", "-password", "demo-password")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, 6, env.backend.Calls(backendtest.EndpointLogin))
}

func TestCLIPasswordFromEnvironment(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("SESSIONGUARD_PASSWORD", "demo-password")

	code, out, errOut := env.run("login", "-email", "demo@smartanom.com")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "signed in")
}

func TestCLIRegisterActivateAndProfile(t *testing.T) {
	env := newCLIEnv(t)

	code, out, errOut := env.run("register",
		"-email", "new@smartanom.com", "-name", "New User", "-password", "s3cret", "-contact", "0812111111")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "registered new@smartanom.com")

	uid, token, ok := env.backend.ActivationLink("new@smartanom.com")
	require.True(t, ok)

	code, out, errOut = env.run("activate", "-uid", uid, "-token", token)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "signed in as new@smartanom.com")

	env.backend.UpdateUser("new@smartanom.com", func(u *session.User) { u.Name = "Renamed" })
	code, out, errOut = env.run("profile")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"name": "Renamed"`)

	code, out, errOut = env.run("update-profile", "-contact", "0812999999", "-username", "newfarmer")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"contact": "0812999999"`)
	assert.Contains(t, out, `"username": "newfarmer"`)
	assert.Contains(t, out, `"name": "Renamed"`)
}

func TestCLIUsageErrors(t *testing.T) {
	env := newCLIEnv(t)

	code, _, errOut := env.run()
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "usage")

	code, _, errOut = env.run("bogus")
	assert.Equal(t, 2, code)
	assert.True(t, strings.Contains(errOut, "unknown command"))

	code, _, errOut = env.run("login", "-email", "demo@smartanom.com")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "password")
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	t.Setenv("SESSIONGUARD_STORE", "postgres")
	_, err := loadConfig()
	require.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SESSIONGUARD_STORE", "Redis")
	t.Setenv("SESSIONGUARD_TIMEOUT", "3s")
	t.Setenv("SESSIONGUARD_LOCKOUT_THRESHOLD", "3")
	t.Setenv("SESSIONGUARD_LOCKOUT_WINDOW", "not-a-duration")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SESSIONGUARD_AUDIT_EVENTS", " lockout_triggered, ,login_locked")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store)

	gc := cfg.guardConfig()
	assert.Equal(t, "3s", gc.Backend.RequestTimeout.String())
	assert.Equal(t, 3, gc.Lockout.Threshold)
	assert.Equal(t, "24h0m0s", gc.Lockout.Window.String())
	assert.Equal(t, "DEBUG", cfg.logLevel().String())
	assert.Equal(t, []string{"lockout_triggered", "login_locked"}, gc.Audit.Events)
	require.NoError(t, gc.Validate())
}

func TestGuardConfigRejectsUnknownAuditEvent(t *testing.T) {
	t.Setenv("SESSIONGUARD_AUDIT_EVENTS", "login_success,password_reset")

	cfg, err := loadConfig()
	require.NoError(t, err)
	gc := cfg.guardConfig()
	assert.ErrorContains(t, gc.Validate(), "password_reset")
}
