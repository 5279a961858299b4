package links

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundayezeilo/linkservice/internal/errx"
	"github.com/sundayezeilo/linkservice/internal/router"
)

// failingRepo returns err from every operation.
type failingRepo struct{ err error }

func (f failingRepo) Get(context.Context, string) (Link, error)            { return Link{}, f.err }
func (f failingRepo) List(context.Context) ([]Link, error)                 { return nil, f.err }
func (f failingRepo) Create(context.Context, string, string) (Link, error) { return Link{}, f.err }
func (f failingRepo) Update(context.Context, string, string, string) (Link, error) {
	return Link{}, f.err
}
func (f failingRepo) Delete(context.Context, string) error { return f.err }

func newTestRouter(repo Repository) *router.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := router.New(logger)
	NewHandler(HandlerConfig{Repository: repo, Logger: logger}).Register(rt)
	return rt
}

func apiRequest(method, resource, id, body string) events.APIGatewayProxyRequest {
	req := events.APIGatewayProxyRequest{
		Body: body,
		RequestContext: events.APIGatewayProxyRequestContext{
			HTTPMethod:   method,
			ResourcePath: resource,
			RequestID:    "req-1",
		},
	}
	if id != "" {
		req.PathParameters = map[string]string{"id": id}
	}
	return req
}

func dispatch(t *testing.T, rt *router.Router, req events.APIGatewayProxyRequest) (int, map[string]any) {
	t.Helper()
	resp, err := rt.Dispatch(context.Background(), req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body), "body: %s", resp.Body)
	return resp.StatusCode, body
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "data should be an object: %v", body)
	return data
}

func TestHandler_Lifecycle(t *testing.T) {
	rt := newTestRouter(NewMemoryRepository(nil, nil))

	status, body := dispatch(t, rt, apiRequest(http.MethodPost, PathLinks, "", `{"title":"Paper","url":"https://example.org"}`))
	require.Equal(t, http.StatusOK, status)
	created := dataOf(t, body)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "Paper", created["title"])
	assert.Equal(t, "https://example.org", created["url"])

	status, body = dispatch(t, rt, apiRequest(http.MethodGet, PathLinks, "", ""))
	require.Equal(t, http.StatusOK, status)
	list, ok := body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	status, body = dispatch(t, rt, apiRequest(http.MethodPut, PathLink, id, `{"title":"Paper2","url":"https://example.org/2"}`))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"id": id, "title": "Paper2", "url": "https://example.org/2"}, dataOf(t, body))

	status, body = dispatch(t, rt, apiRequest(http.MethodGet, PathLink, id, ""))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Paper2", dataOf(t, body)["title"])

	status, body = dispatch(t, rt, apiRequest(http.MethodDelete, PathLink, id, ""))
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body)

	status, body = dispatch(t, rt, apiRequest(http.MethodGet, PathLink, id, ""))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, map[string]any{"message": "not found"}, body)

	status, body = dispatch(t, rt, apiRequest(http.MethodGet, PathLinks, "", ""))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["data"])
}

func TestHandler_Responses(t *testing.T) {
	tests := []struct {
		name       string
		repo       Repository
		req        events.APIGatewayProxyRequest
		wantStatus int
		wantBody   map[string]any
	}{
		{
			name:       "unknown id",
			repo:       NewMemoryRepository(nil, nil),
			req:        apiRequest(http.MethodGet, PathLink, "unknown-id", ""),
			wantStatus: http.StatusNotFound,
			wantBody:   map[string]any{"message": "not found"},
		},
		{
			name:       "null title",
			repo:       NewMemoryRepository(nil, nil),
			req:        apiRequest(http.MethodPost, PathLinks, "", `{"title": null}`),
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"message": "failed"},
		},
		{
			name:       "update unknown id",
			repo:       NewMemoryRepository(nil, nil),
			req:        apiRequest(http.MethodPut, PathLink, "unknown-id", `{"title":"x"}`),
			wantStatus: http.StatusNotFound,
			wantBody:   map[string]any{"message": "not found"},
		},
		{
			name:       "delete unknown id",
			repo:       NewMemoryRepository(nil, nil),
			req:        apiRequest(http.MethodDelete, PathLink, "unknown-id", ""),
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{},
		},
		{
			name:       "list backend failure",
			repo:       failingRepo{err: errx.E("links.test", errx.Unavailable, errors.New("down"))},
			req:        apiRequest(http.MethodGet, PathLinks, "", ""),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]any{"message": "unavailable"},
		},
		{
			name:       "get backend failure is not 404",
			repo:       failingRepo{err: errx.E("links.test", errx.Unavailable, errors.New("down"))},
			req:        apiRequest(http.MethodGet, PathLink, "abc", ""),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]any{"message": "unavailable"},
		},
		{
			name:       "create conflict",
			repo:       failingRepo{err: errx.E("links.test", errx.Conflict, errors.New("taken"))},
			req:        apiRequest(http.MethodPost, PathLinks, "", `{"title":"Paper"}`),
			wantStatus: http.StatusConflict,
			wantBody:   map[string]any{"message": "conflict"},
		},
		{
			name:       "undecodable record",
			repo:       failingRepo{err: errx.E("links.test", errx.Internal, errors.New("bad item"))},
			req:        apiRequest(http.MethodGet, PathLink, "abc", ""),
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]any{"message": "internal error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := dispatch(t, newTestRouter(tt.repo), tt.req)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestHandler_FallbackCases(t *testing.T) {
	tests := []struct {
		name string
		req  events.APIGatewayProxyRequest
	}{
		{name: "unsupported method", req: apiRequest(http.MethodPatch, PathLinks, "", "")},
		{name: "unknown resource", req: apiRequest(http.MethodGet, "/bookmarks", "", "")},
		{name: "missing path id", req: apiRequest(http.MethodGet, PathLink, "", "")},
		{name: "malformed body", req: apiRequest(http.MethodPost, PathLinks, "", `{"title":`)},
		{name: "empty body", req: apiRequest(http.MethodPost, PathLinks, "", "")},
		{name: "wrong field type", req: apiRequest(http.MethodPut, PathLink, "abc", `{"title":42}`)},
		{name: "null body", req: apiRequest(http.MethodPost, PathLinks, "", `null`)},
		{name: "array body", req: apiRequest(http.MethodPost, PathLinks, "", `[]`)},
		{name: "string body", req: apiRequest(http.MethodPost, PathLinks, "", `"Paper"`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := dispatch(t, newTestRouter(NewMemoryRepository(nil, nil)), tt.req)
			assert.Equal(t, http.StatusNotFound, status)
			assert.Equal(t, "not found", body["message"])
			assert.Equal(t, tt.req.RequestContext.HTTPMethod, body["httpMethod"])
			assert.Equal(t, tt.req.RequestContext.ResourcePath, body["path"])
		})
	}
}

func TestHandler_UpdateWithNonObjectBodyKeepsRecord(t *testing.T) {
	repo := NewMemoryRepository(nil, nil)
	stored, err := repo.Create(context.Background(), "Paper", "https://example.org")
	require.NoError(t, err)
	rt := newTestRouter(repo)

	for _, body := range []string{`null`, ` null `, `[]`, `[{"title":"x"}]`, `"Paper2"`} {
		t.Run(body, func(t *testing.T) {
			status, resp := dispatch(t, rt, apiRequest(http.MethodPut, PathLink, stored.ID, body))
			assert.Equal(t, http.StatusNotFound, status)
			assert.Equal(t, "not found", resp["message"])
			assert.Equal(t, http.MethodPut, resp["httpMethod"])

			got, err := repo.Get(context.Background(), stored.ID)
			require.NoError(t, err)
			assert.Equal(t, stored, got)
		})
	}
}

func TestHandler_Base64Body(t *testing.T) {
	rt := newTestRouter(NewMemoryRepository(nil, nil))

	req := apiRequest(http.MethodPost, PathLinks, "", base64.StdEncoding.EncodeToString([]byte(`{"title":"Paper"}`)))
	req.IsBase64Encoded = true

	status, body := dispatch(t, rt, req)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Paper", dataOf(t, body)["title"])
	assert.Equal(t, "", dataOf(t, body)["url"])
}

func TestHandler_RegisterRoutes(t *testing.T) {
	rt := newTestRouter(NewMemoryRepository(nil, nil))

	var got []string
	for _, r := range rt.Routes() {
		got = append(got, r.Method+" "+r.Path)
	}
	assert.Equal(t, []string{
		"GET /links",
		"GET /links/{id}",
		"POST /links",
		"PUT /links/{id}",
		"DELETE /links/{id}",
	}, got)
}
