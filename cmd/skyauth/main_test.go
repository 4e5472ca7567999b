package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skyauth/internal/apperrors"
	"github.com/nkiryanov/skyauth/internal/testutil"
)

func noenv(string) string { return "" }

func Test_run(t *testing.T) {
	idsrv := testutil.StartIdentityServer(t)

	// Every call shares the same file store, like separate CLI invocations do
	storePath := filepath.Join(t.TempDir(), "credentials.json")
	cli := func(t *testing.T, args ...string) (string, error) {
		t.Helper()

		out := &bytes.Buffer{}
		flags := []string{"--auth-service", idsrv.URL, "--store", "file", "--store-path", storePath, "--log-level", "error"}
		err := run(t.Context(), noenv, os.Getwd, append(flags, args...), out)
		return out.String(), err
	}

	t.Run("session lifecycle", func(t *testing.T) {
		_, err := cli(t, "whoami")
		require.Error(t, err, "no session yet")

		out, err := cli(t, "register", "a@b.com", "longenough1", "Alice")
		require.NoError(t, err)
		require.Contains(t, out, "User registered successfully")

		out, err = cli(t, "whoami")
		require.NoError(t, err)
		require.Contains(t, out, `"email": "a@b.com"`)
		require.Contains(t, out, `"name": "Alice"`)

		out, err = cli(t, "exists", "a@b.com")
		require.NoError(t, err)
		require.Contains(t, out, `"user_exists": true`)

		out, err = cli(t, "refresh")
		require.NoError(t, err)
		require.Contains(t, out, "Access token refreshed")

		out, err = cli(t, "profile-update", "Alicia", "a@b.com", "female")
		require.NoError(t, err)
		require.Contains(t, out, `"name": "Alicia"`)

		_, err = cli(t, "logout")
		require.NoError(t, err)

		_, err = cli(t, "profile")
		require.ErrorIs(t, err, apperrors.ErrNoAccessToken)

		out, err = cli(t, "login", "a@b.com", "longenough1")
		require.NoError(t, err)
		require.Contains(t, out, "User logged in successfully")

		out, err = cli(t, "profile-delete")
		require.NoError(t, err)
		require.Contains(t, out, "user profile deleted")
	})

	t.Run("login rejected", func(t *testing.T) {
		_, err := cli(t, "login", "nobody@b.com", "longenough1")

		require.ErrorIs(t, err, apperrors.ErrAuthRejected)
	})

	t.Run("usage errors", func(t *testing.T) {
		for _, args := range [][]string{
			{},
			{"unknown"},
			{"login", "only-email"},
			{"--invalid-flag"},
		} {
			_, err := cli(t, args...)
			require.ErrorIs(t, err, errUsage, "args: %v", args)
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		err := run(t.Context(), noenv, os.Getwd, []string{"--store", "floppy", "whoami"}, &bytes.Buffer{})

		require.ErrorIs(t, err, apperrors.ErrUnknownStore)
	})
}

func Test_serve(t *testing.T) {
	idsrv := testutil.StartIdentityServer(t)

	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, noenv, os.Getwd, []string{
			"--address", listenAddr,
			"--auth-service", idsrv.URL,
			"--store", "memory",
			"--log-level", "debug",
			"serve",
		}, &bytes.Buffer{})
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listenAddr + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 20*time.Millisecond, "portal should answer on entry page")

	cancel()
	require.NoError(t, <-done, "on correct stop should not return error")
}
