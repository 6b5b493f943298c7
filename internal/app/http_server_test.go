package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// startOpsServer поднимает ops-сервер на свободном порту и возвращает его
// базовый URL вместе с health handler для регистрации проверок.
func startOpsServer(t *testing.T, ctx context.Context) (string, *healthcheck.Handler) {
	t.Helper()

	port := findFreePort(t)
	logger := log.WithField("test", "ops-server")

	healthHandler := healthcheck.NewHandler(version.String())
	srv := startMetricsServer(ctx, fmt.Sprintf(":%d", port), logger, healthHandler)
	if srv == nil {
		t.Fatal("startMetricsServer returned nil")
	}

	baseURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, baseURL+"/livez")
	return baseURL, healthHandler
}

func waitForServer(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server did not start serving %s", url)
}

func TestOpsServer_ServesAllEndpoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseURL, healthHandler := startOpsServer(t, ctx)
	healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
		return nil
	}))

	cases := []struct {
		path     string
		wantBody string
	}{
		{"/metrics", ""},
		{"/healthz", ""},
		{"/livez", "ok"},
		{"/readyz", "ready"},
	}

	for _, tc := range cases {
		resp, err := http.Get(baseURL + tc.path)
		if err != nil {
			t.Errorf("GET %s: %v", tc.path, err)
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned status %d, expected 200", tc.path, resp.StatusCode)
		}
		if tc.wantBody != "" && string(body) != tc.wantBody {
			t.Errorf("%s body = %q, want %q", tc.path, body, tc.wantBody)
		}
	}
}

func TestOpsServer_MetricsExposition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseURL, _ := startOpsServer(t, ctx)

	resp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("failed to get /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "# HELP") {
		t.Error("/metrics should serve Prometheus exposition format")
	}
}

func TestOpsServer_ReadinessReflectsDependencies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseURL, healthHandler := startOpsServer(t, ctx)

	dbDown := false
	healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
		if dbDown {
			return errors.New("connection refused")
		}
		return nil
	}))

	resp, err := http.Get(baseURL + "/readyz")
	if err != nil {
		t.Fatalf("failed to get /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 while postgres is up, got %d", resp.StatusCode)
	}

	dbDown = true
	resp, err = http.Get(baseURL + "/readyz")
	if err != nil {
		t.Fatalf("failed to get /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after postgres went down, got %d", resp.StatusCode)
	}
}

func TestOpsServer_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	baseURL, _ := startOpsServer(t, ctx)
	url := baseURL + "/livez"

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err != nil {
			return // сервер остановился
		}
		resp.Body.Close()
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("server should stop after context cancellation")
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	logger := log.WithField("test", "http-nil")

	// Не должно паниковать
	shutdownHTTP(nil, logger)
}

func TestShutdownHTTP_WithServer(t *testing.T) {
	logger := log.WithField("test", "http-shutdown-func")

	port := findFreePort(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		_ = srv.ListenAndServe()
	}()

	url := fmt.Sprintf("http://localhost:%d/test", port)
	waitForServer(t, url)

	shutdownHTTP(srv, logger)

	if _, err := http.Get(url); err == nil {
		t.Error("server should be stopped after shutdownHTTP")
	}
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
