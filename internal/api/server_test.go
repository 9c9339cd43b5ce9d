package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/tempkey-core/internal/infrastructure/config"
	"github.com/nerrad567/tempkey-core/internal/infrastructure/logging"
	"github.com/nerrad567/tempkey-core/internal/replication"
)

type fakeStatus struct {
	count int
	last  replication.Result
}

func (f *fakeStatus) Count() int                          { return f.count }
func (f *fakeStatus) LastReplication() replication.Result { return f.last }

func testServer(t *testing.T, status *fakeStatus) (*Server, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, config.LoggingConfig{Level: "debug", Format: "json"}, "test")

	srv, err := New(Deps{
		Config: config.HealthConfig{
			Enabled:  true,
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:  log,
		Status:  status,
		Version: "1.2.3",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, &buf
}

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Status: &fakeStatus{}}},
		{"no status", Deps{Logger: logging.Discard()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// ============================================================================
// Routes
// ============================================================================

func TestLiveness(t *testing.T) {
	srv, _ := testServer(t, &fakeStatus{})
	h := srv.buildRouter()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != livenessText {
		t.Errorf("body = %q, want %q", got, livenessText)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestHealth(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		last       replication.Result
		wantStatus string
		wantRepl   string
		wantError  string
		wantAt     bool
	}{
		{
			name:       "no replication yet",
			wantStatus: "ok",
			wantRepl:   "pending",
		},
		{
			name:       "synced",
			last:       replication.Result{Status: replication.StatusSynced, Sink: "github", Digest: "abc", At: at},
			wantStatus: "ok",
			wantRepl:   "synced",
			wantAt:     true,
		},
		{
			name: "failed",
			last: replication.Result{
				Status: replication.StatusFailed,
				Sink:   "git",
				Err:    fmt.Errorf("%w: git: push rejected", replication.ErrReplicationFailed),
				At:     at,
			},
			wantStatus: "degraded",
			wantRepl:   "failed",
			wantError:  "replication failed",
			wantAt:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, &fakeStatus{count: 3, last: tt.last})

			rec := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Version != "1.2.3" || resp.Records != 3 {
				t.Errorf("version/records = %q/%d", resp.Version, resp.Records)
			}
			if resp.Replication.Status != tt.wantRepl {
				t.Errorf("replication.status = %q, want %q", resp.Replication.Status, tt.wantRepl)
			}
			if !strings.Contains(resp.Replication.Error, tt.wantError) {
				t.Errorf("replication.error = %q, want it to contain %q", resp.Replication.Error, tt.wantError)
			}
			if (resp.Replication.At != nil) != tt.wantAt {
				t.Errorf("replication.at = %v, want present=%v", resp.Replication.At, tt.wantAt)
			}
		})
	}
}

type fakeChecker struct {
	err error
}

func (f fakeChecker) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.err
}

func TestHealth_Components(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]HealthChecker
		wantStatus string
		want       map[string]string
	}{
		{
			name:       "none configured",
			wantStatus: "ok",
		},
		{
			name: "all healthy",
			components: map[string]HealthChecker{
				"database": fakeChecker{},
				"mqtt":     fakeChecker{},
			},
			wantStatus: "ok",
			want:       map[string]string{"database": "ok", "mqtt": "ok"},
		},
		{
			name: "one failing",
			components: map[string]HealthChecker{
				"database": fakeChecker{},
				"influxdb": fakeChecker{err: errors.New("influxdb: not connected")},
				"mqtt":     nil,
			},
			wantStatus: "degraded",
			want:       map[string]string{"database": "ok", "influxdb": "influxdb: not connected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := New(Deps{
				Logger:     logging.Discard(),
				Status:     &fakeStatus{},
				Components: tt.components,
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			rec := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Components) != len(tt.want) {
				t.Fatalf("components = %v, want %v", resp.Components, tt.want)
			}
			for name, want := range tt.want {
				if got := resp.Components[name]; got != want {
					t.Errorf("components[%s] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := testServer(t, &fakeStatus{})

	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var e Error
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if e.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotFound)
	}
}

// ============================================================================
// Middleware
// ============================================================================

func TestRequestID_ReusesClientHeader(t *testing.T) {
	srv, _ := testServer(t, &fakeStatus{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-id" {
		t.Errorf("X-Request-ID = %q, want client-id", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, buf := testServer(t, &fakeStatus{})

	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	srv, buf := testServer(t, &fakeStatus{})

	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if !strings.Contains(buf.String(), `"status":200`) {
		t.Errorf("request log missing status: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"path":"/api/v1/health"`) {
		t.Errorf("request log missing path: %s", buf.String())
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t, &fakeStatus{count: 1})

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start = nil, want error")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start = nil, want error")
	}
	if srv.server.ReadTimeout != 5*time.Second || srv.server.WriteTimeout != 5*time.Second || srv.server.IdleTimeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v/%v, want 5s from config",
			srv.server.ReadTimeout, srv.server.WriteTimeout, srv.server.IdleTimeout)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != livenessText {
		t.Errorf("body = %q", body)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := http.Get("http://" + srv.Addr() + "/"); err == nil {
		t.Error("GET after Close succeeded")
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	first, _ := testServer(t, &fakeStatus{})
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { first.Close() }) //nolint:errcheck // Test cleanup

	second, _ := testServer(t, &fakeStatus{})
	_, port, _ := strings.Cut(first.Addr(), ":")
	fmt.Sscanf(port, "%d", &second.cfg.Port) //nolint:errcheck // Port comes from a live listener

	if err := second.Start(context.Background()); err == nil {
		second.Close() //nolint:errcheck // Test cleanup
		t.Error("Start on a bound port = nil, want error")
	}
}

func TestHealthCheck_CancelledContext(t *testing.T) {
	srv, _ := testServer(t, &fakeStatus{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := srv.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck = %v, want context.Canceled", err)
	}
}
