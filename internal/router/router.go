// Package router dispatches API Gateway proxy requests to handler functions
// keyed by exact (HTTP method, resource path template) pairs.
//
// Any request the router cannot serve, whether the route is unknown or the
// handler failed or panicked, gets the same 404 fallback response carrying the
// request method, path and request context for diagnostics.
package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/aws/aws-lambda-go/events"
)

// HandlerFunc serves one route. A returned error is logged and turned into
// the fallback response; handlers render domain outcomes themselves.
type HandlerFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Route is one registered (method, path) pair.
type Route struct {
	Method  string
	Path    string
	Handler HandlerFunc
}

type routeKey struct {
	method string
	path   string
}

// Router holds the routing table. It is not safe to register routes while
// dispatching.
type Router struct {
	logger *slog.Logger
	routes map[routeKey]HandlerFunc
	order  []Route
}

// New returns an empty Router. A nil logger means slog.Default().
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger: logger,
		routes: make(map[routeKey]HandlerFunc),
	}
}

// Handle registers h for method and path. Registering the same pair twice
// replaces the earlier handler.
func (r *Router) Handle(method, path string, h HandlerFunc) {
	key := routeKey{method: method, path: path}
	if _, exists := r.routes[key]; !exists {
		r.order = append(r.order, Route{Method: method, Path: path, Handler: h})
	} else {
		for i := range r.order {
			if r.order[i].Method == method && r.order[i].Path == path {
				r.order[i].Handler = h
			}
		}
	}
	r.routes[key] = h
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.order))
	copy(out, r.order)
	return out
}

// Dispatch serves req. The error result is always nil so the function can be
// handed to lambda.Start directly.
func (r *Router) Dispatch(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, _ error) {
	method, path := routeOf(req)
	logger := r.logger.With(
		"request_id", req.RequestContext.RequestID,
		"method", method,
		"path", path,
	)

	h, ok := r.routes[routeKey{method: method, path: path}]
	if !ok {
		logger.WarnContext(ctx, "no route for request")
		return notFound(req, method, path), nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "handler panicked",
				"error", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			resp = notFound(req, method, path)
		}
	}()

	resp, err := h(ctx, req)
	if err != nil {
		logger.WarnContext(ctx, "handler failed", "error", err.Error())
		return notFound(req, method, path), nil
	}
	return resp, nil
}

// routeOf prefers the request context, which is what API Gateway fills for
// proxy integrations, and falls back to the top-level fields.
func routeOf(req events.APIGatewayProxyRequest) (method, path string) {
	method = req.RequestContext.HTTPMethod
	if method == "" {
		method = req.HTTPMethod
	}
	path = req.RequestContext.ResourcePath
	if path == "" {
		path = req.Resource
	}
	return method, path
}

type fallbackBody struct {
	Message        string                               `json:"message"`
	Path           string                               `json:"path"`
	HTTPMethod     string                               `json:"httpMethod"`
	RequestContext events.APIGatewayProxyRequestContext `json:"requestContext"`
}

func notFound(req events.APIGatewayProxyRequest, method, path string) events.APIGatewayProxyResponse {
	resp, err := JSON(http.StatusNotFound, fallbackBody{
		Message:        "not found",
		Path:           path,
		HTTPMethod:     method,
		RequestContext: req.RequestContext,
	})
	if err != nil {
		resp, _ = Message(http.StatusNotFound, "not found")
	}
	return resp
}

// JSON renders v as the response body.
func JSON(status int, v any) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("encode response: %w", err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}, nil
}

type messageBody struct {
	Message string `json:"message"`
}

// Message renders {"message": msg}.
func Message(status int, msg string) (events.APIGatewayProxyResponse, error) {
	return JSON(status, messageBody{Message: msg})
}

// Body returns the raw request body, decoding it when API Gateway delivered it
// base64-encoded.
func Body(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, fmt.Errorf("decode base64 body: %w", err)
	}
	return b, nil
}
