package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sundayezeilo/linkservice/internal/app"
	"github.com/sundayezeilo/linkservice/internal/config"
	"github.com/sundayezeilo/linkservice/internal/server"
	"github.com/sundayezeilo/linkservice/internal/testsupport"
)

// testApp holds the application components for e2e testing
type testApp struct {
	app     *app.App
	server  *httptest.Server
	cleanup func()
}

// setupTestApp wires the real application against DynamoDB Local and serves
// it over HTTP the way `linksvc serve` does.
func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	endpoint := testsupport.StartDynamoDB(t)

	cfg := &config.Config{
		App: config.AppConfig{
			Environment: "test",
			LogLevel:    "error",
		},
		Store: config.StoreConfig{
			Backend:   config.BackendDynamoDB,
			Local:     true,
			TableName: config.DefaultLocalTableName,
			Endpoint:  endpoint,
			Region:    testsupport.LocalRegion,
			IDVersion: 7,
		},
	}

	logger := setupTestLogger()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}

	if err := a.EnsureTable(ctx, 30*time.Second); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	srv := server.New(config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            "0",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}, logger, a.Router)

	ts := httptest.NewServer(srv.Handler())

	return &testApp{
		app:    a,
		server: ts,
		cleanup: func() {
			ts.Close()
			a.Shutdown()
		},
	}
}

// do sends a JSON request and decodes the JSON response.
func (ta *testApp) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ta.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.StatusCode, decoded
}

func dataOf(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", resp)
	}
	return data
}

func TestHealthCheck(t *testing.T) {
	ta := setupTestApp(t)
	defer ta.cleanup()

	status, resp := ta.do(t, http.MethodGet, "/x/health", nil)

	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestLinkLifecycle_E2E(t *testing.T) {
	ta := setupTestApp(t)
	defer ta.cleanup()

	status, resp := ta.do(t, http.MethodPost, "/links", map[string]string{
		"title": "Paper",
		"url":   "https://example.org",
	})
	if status != http.StatusOK {
		t.Fatalf("failed to create link: status %d, body %v", status, resp)
	}
	id, _ := dataOf(t, resp)["id"].(string)
	if id == "" {
		t.Fatal("expected id to be generated")
	}

	status, resp = ta.do(t, http.MethodGet, "/links", nil)
	if status != http.StatusOK {
		t.Fatalf("failed to list links: status %d", status)
	}
	list, _ := resp["data"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected 1 link, got %d", len(list))
	}

	status, resp = ta.do(t, http.MethodPut, "/links/"+id, map[string]string{
		"title": "Paper2",
		"url":   "https://example.org/2",
	})
	if status != http.StatusOK {
		t.Fatalf("failed to update link: status %d", status)
	}

	status, resp = ta.do(t, http.MethodGet, "/links/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("failed to get link: status %d", status)
	}
	got := dataOf(t, resp)
	if got["id"] != id || got["title"] != "Paper2" || got["url"] != "https://example.org/2" {
		t.Errorf("unexpected link after update: %v", got)
	}

	status, _ = ta.do(t, http.MethodDelete, "/links/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("failed to delete link: status %d", status)
	}

	status, resp = ta.do(t, http.MethodGet, "/links/"+id, nil)
	if status != http.StatusNotFound {
		t.Errorf("expected status 404 after delete, got %d", status)
	}
	if resp["message"] != "not found" {
		t.Errorf("expected message 'not found', got %v", resp["message"])
	}

	status, resp = ta.do(t, http.MethodGet, "/links", nil)
	if status != http.StatusOK {
		t.Fatalf("failed to list links: status %d", status)
	}
	if list, _ := resp["data"].([]any); len(list) != 0 {
		t.Errorf("expected empty list, got %v", list)
	}
}

func TestErrorResponses_E2E(t *testing.T) {
	ta := setupTestApp(t)
	defer ta.cleanup()

	tests := []struct {
		name            string
		method          string
		path            string
		body            any
		expectedStatus  int
		expectedMessage string
	}{
		{
			name:            "get unknown id",
			method:          http.MethodGet,
			path:            "/links/unknown-id",
			expectedStatus:  http.StatusNotFound,
			expectedMessage: "not found",
		},
		{
			name:            "update unknown id does not create it",
			method:          http.MethodPut,
			path:            "/links/unknown-id",
			body:            map[string]string{"title": "x"},
			expectedStatus:  http.StatusNotFound,
			expectedMessage: "not found",
		},
		{
			name:            "null title",
			method:          http.MethodPost,
			path:            "/links",
			body:            map[string]any{"title": nil},
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: "failed",
		},
		{
			name:            "unsupported method",
			method:          http.MethodPatch,
			path:            "/links",
			expectedStatus:  http.StatusNotFound,
			expectedMessage: "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := ta.do(t, tt.method, tt.path, tt.body)

			if status != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, status)
			}
			if resp["message"] != tt.expectedMessage {
				t.Errorf("expected message %q, got %v", tt.expectedMessage, resp["message"])
			}
		})
	}

	// The failed update must not have created the record.
	if status, _ := ta.do(t, http.MethodGet, "/links/unknown-id", nil); status != http.StatusNotFound {
		t.Errorf("expected unknown-id to stay absent, got status %d", status)
	}
}

func TestConcurrentLinkCreation_E2E(t *testing.T) {
	ta := setupTestApp(t)
	defer ta.cleanup()

	concurrency := 10
	errChan := make(chan error, concurrency)
	idChan := make(chan string, concurrency)

	for i := range concurrency {
		go func(index int) {
			raw, _ := json.Marshal(map[string]string{
				"title": fmt.Sprintf("link %d", index),
				"url":   fmt.Sprintf("https://example.com/concurrent-%d", index),
			})
			resp, err := ta.server.Client().Post(ta.server.URL+"/links", "application/json", bytes.NewReader(raw))
			if err != nil {
				errChan <- err
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				errChan <- fmt.Errorf("request %d failed with status %d", index, resp.StatusCode)
				return
			}

			var decoded struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				errChan <- err
				return
			}

			idChan <- decoded.Data.ID
			errChan <- nil
		}(i)
	}

	ids := make(map[string]bool)
	for range concurrency {
		if err := <-errChan; err != nil {
			t.Errorf("concurrent request failed: %v", err)
			continue
		}
		id := <-idChan
		if ids[id] {
			t.Errorf("duplicate id generated: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != concurrency {
		t.Errorf("expected %d unique ids, got %d", concurrency, len(ids))
	}

	all, err := ta.app.Repository.List(context.Background())
	if err != nil {
		t.Fatalf("failed to list links: %v", err)
	}
	if len(all) != concurrency {
		t.Errorf("expected %d stored links, got %d", concurrency, len(all))
	}
}

func setupTestLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	})
	return slog.New(handler)
}
