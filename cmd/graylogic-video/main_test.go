package main

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-video/internal/auth"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-video/internal/session"
	"github.com/nerrad567/gray-logic-video/internal/video"
)

const testJWTSecret = "test-secret-key-at-least-32-chars!"

// testIssuer is the default security.jwt.issuer.
const testIssuer = "graylogic"

// newCamera starts an Axis-like camera serving sizeBody from the size CGI
// and a held MJPEG stream of small frames.
func newCamera(t *testing.T, sizeBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(video.DefaultImageSizePath[:strings.Index(video.DefaultImageSizePath, "?")], func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, sizeBody)
	})
	mux.HandleFunc(video.DefaultVideoPath, func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		flusher, _ := w.(http.Flusher)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			frame := bytes.Repeat([]byte{0x55}, 128)
			frame[0], frame[1], frame[126], frame[127] = 0xFF, 0xD8, 0xFF, 0xD9
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {"image/jpeg"},
				"Content-Length": {strconv.Itoa(len(frame))},
			})
			if err != nil {
				return
			}
			part.Write(frame) //nolint:errcheck // Test server
			if flusher != nil {
				flusher.Flush()
			}
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, cameraURL, dbPath string, port int) {
	t.Helper()
	content := fmt.Sprintf(`
camera:
  id: "porch"
  address: %q
  backoff_delay_ms: 50
relay:
  enabled: false
database:
  path: %q
  wal_mode: true
  busy_timeout: 5
influxdb:
  enabled: false
logging:
  level: error
  output: stderr
api:
  host: "127.0.0.1"
  port: %d
security:
  auth:
    enabled: true
  jwt:
    secret: %q
`, cameraURL, dbPath, port, testJWTSecret)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", path)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want config load failure", err)
	}
}

func TestRun_MalformedImageSizeIsFatal(t *testing.T) {
	cam := newCamera(t, "no dimensions here")
	writeConfig(t, cam.URL, filepath.Join(t.TempDir(), "video.db"), freePort(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "initialising video output") {
		t.Fatalf("run() error = %v, want init failure", err)
	}
}

func TestRun_StartupAndShutdown(t *testing.T) {
	cam := newCamera(t, "image width = 640\r\nimage height = 360\r\n")
	dbPath := filepath.Join(t.TempDir(), "video.db")
	port := freePort(t)
	writeConfig(t, cam.URL, dbPath, port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	token, err := auth.GenerateToken("tester", testJWTSecret, testIssuer, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	// Wait until a frame has been captured and is served.
	deadline := time.Now().Add(5 * time.Second)
	var latest *http.Response
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, base+"/api/v1/video/latest", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			if resp.StatusCode == http.StatusOK {
				latest = resp
				break
			}
			resp.Body.Close()
		}
		time.Sleep(20 * time.Millisecond)
	}
	if latest == nil {
		cancel()
		t.Fatalf("no frame served before deadline (run: %v)", <-done)
	}
	latest.Body.Close()
	if ct := latest.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}

	resp, err := http.Get(base + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	// The shutdown closed the session it recorded.
	db, err := database.Open(context.Background(), database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()
	sessions, err := session.NewSQLiteRepository(db.DB).ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(sessions) == 0 {
		t.Fatal("no sessions recorded")
	}
	if got := sessions[0].Outcome; got != session.OutcomeStopped {
		t.Errorf("last session outcome = %q, want %q", got, session.OutcomeStopped)
	}
}

func TestOutputConfig(t *testing.T) {
	cfg := &config.Config{
		Camera: config.CameraConfig{
			OutputName:     "porchVideo",
			ConnectTimeout: 3,
			BackoffDelay:   500,
			IdleTimeout:    8,
			FrameRate:      10,
			StartPaused:    true,
			Endpoints:      config.CameraEndpointsConfig{Video: "/mjpg/2/video.mjpg"},
		},
	}

	got := outputConfig(cfg)
	if got.Name != "porchVideo" || !got.StartPaused {
		t.Errorf("Name = %q, StartPaused = %v", got.Name, got.StartPaused)
	}
	if got.Endpoints.VideoPath != "/mjpg/2/video.mjpg" {
		t.Errorf("VideoPath = %q, want override", got.Endpoints.VideoPath)
	}
	if got.Endpoints.ImageSizePath != video.DefaultImageSizePath {
		t.Errorf("ImageSizePath = %q, want default", got.Endpoints.ImageSizePath)
	}
	if got.BackoffDelay != 500*time.Millisecond || got.ConnectTimeout != 3*time.Second {
		t.Errorf("BackoffDelay = %v, ConnectTimeout = %v", got.BackoffDelay, got.ConnectTimeout)
	}
	if got.SamplingPeriod != 100*time.Millisecond {
		t.Errorf("SamplingPeriod = %v, want 100ms", got.SamplingPeriod)
	}
}

func TestRunToken(t *testing.T) {
	writeConfig(t, "192.168.1.90", filepath.Join(t.TempDir(), "video.db"), 8090)

	var out bytes.Buffer
	if err := runToken([]string{"-sub", "panel", "-control", "-ttl", "1h"}, &out); err != nil {
		t.Fatalf("runToken() error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testJWTSecret, testIssuer)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "panel" || !claims.HasScope(auth.ScopeControl) {
		t.Errorf("claims = %+v, want panel with control scope", claims)
	}

	if err := runToken([]string{"-bogus"}, &out); err == nil {
		t.Error("runToken() with unknown flag error = nil")
	}
}
