package api

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cbquant/pkg/config"
	"github.com/wonny/cbquant/pkg/logger"
)

func TestServer_RunAndStop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := New(&config.Config{Port: "0"}, logger.Nop(), mux)
	require.NoError(t, srv.Listen())
	assert.NotEqual(t, ":0", srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ListenPortInUse(t *testing.T) {
	first := New(&config.Config{Port: "0"}, logger.Nop(), http.NotFoundHandler())
	require.NoError(t, first.Listen())
	defer first.listener.Close()

	_, port, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)

	second := New(&config.Config{Port: port}, logger.Nop(), http.NotFoundHandler())
	assert.Error(t, second.Listen())
}

func TestWriteTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Minute, writeTimeout(&config.Config{}))
	assert.Equal(t, 135*time.Second, writeTimeout(&config.Config{API: config.APIConfig{RequestTimeout: 2 * time.Minute}}))
}
