package opsserver_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/mqtt2search/pkg/opsserver"
)

func TestServer_Healthz(t *testing.T) {
	server := opsserver.New(zerolog.Nop(), 0)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	require.NotEmpty(t, server.Addr())

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", server.Addr()))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestServer_ShutdownStopsListener(t *testing.T) {
	server := opsserver.New(zerolog.Nop(), 0)
	require.NoError(t, server.Start())
	addr := server.Addr()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(shutdownCtx))

	_, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	require.Error(t, err)
}
