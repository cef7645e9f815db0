package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/techstore/storefront/internal/health"
	"github.com/techstore/storefront/internal/version"
)

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func waitListening(t *testing.T, addr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", func(context.Context) error { return nil }))
	srv := startMetricsServer(ctx, addr, log.WithField("test", "http"), healthHandler)
	require.NotNil(t, srv)
	waitListening(t, addr)

	tests := []struct {
		path     string
		contains string
	}{
		{path: "/metrics", contains: "go_goroutines"},
		{path: "/healthz", contains: `"storage"`},
		{path: "/livez", contains: "ok"},
		{path: "/readyz", contains: "ready"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			code, body := getBody(t, "http://"+addr+tc.path)
			require.Equal(t, http.StatusOK, code)
			require.Contains(t, body, tc.contains)
		})
	}
}

func TestStartMetricsServer_ReadinessFailsOnCriticalChecker(t *testing.T) {
	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", func(context.Context) error {
		return fmt.Errorf("connection refused")
	}))
	startMetricsServer(ctx, addr, log.WithField("test", "http"), healthHandler)
	waitListening(t, addr)

	code, _ := getBody(t, "http://"+addr+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	code, body := getBody(t, "http://"+addr+"/healthz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Contains(t, body, "connection refused")

	code, _ = getBody(t, "http://"+addr+"/livez")
	require.Equal(t, http.StatusOK, code)
}

func TestStartMetricsServer_StopsOnContextCancel(t *testing.T) {
	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	ctx, cancel := context.WithCancel(context.Background())

	startMetricsServer(ctx, addr, log.WithField("test", "http-shutdown"), healthcheck.NewHandler(version.GetVersion()))
	waitListening(t, addr)

	cancel()
	require.Eventually(t, func() bool {
		_, err := http.Get("http://" + addr + "/livez")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStartMetricsServer_BusyAddrDoesNotPanic(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := startMetricsServer(ctx, listener.Addr().String(), log.WithField("test", "http-busy"), healthcheck.NewHandler(version.GetVersion()))
	require.NotNil(t, srv)
}

func TestShutdownHTTP(t *testing.T) {
	logger := log.WithField("test", "http-shutdown-func")
	require.NotPanics(t, func() { shutdownHTTP(nil, logger) })

	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
	go func() { _ = srv.ListenAndServe() }()
	waitListening(t, addr)

	shutdownHTTP(srv, logger)
	_, err := net.Dial("tcp", addr)
	require.Error(t, err)
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
