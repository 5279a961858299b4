package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/mux"

	"github.com/sundayezeilo/linkservice/internal/config"
	"github.com/sundayezeilo/linkservice/internal/httpx"
	"github.com/sundayezeilo/linkservice/internal/router"
)

// localStage is reported as the API Gateway stage for bridged requests.
const localStage = "local"

// Server exposes a router.Router over plain HTTP for local development.
// Requests are converted to API Gateway proxy events so the dispatcher sees
// exactly what it would see behind API Gateway.
type Server struct {
	config config.ServerConfig
	logger *slog.Logger
	router *router.Router
	server *http.Server
}

// New creates a new Server instance.
func New(cfg config.ServerConfig, logger *slog.Logger, rt *router.Router) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: cfg,
		logger: logger,
		router: rt,
	}
}

// Handler returns the routed and middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.setupRoutes())
}

// Start starts the HTTP server and blocks until ctx is done, a shutdown
// signal arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         net.JoinHostPort(s.config.Host, s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.server.Addr)
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.logger.Info("received shutdown signal", "signal", sig.String())

	case <-ctx.Done():
		s.logger.Info("context done, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// setupRoutes mirrors every dispatcher route onto a gorilla/mux route. Paths
// and methods mux cannot match are still forwarded so the dispatcher renders
// its own fallback.
func (s *Server) setupRoutes() *mux.Router {
	m := mux.NewRouter()

	m.HandleFunc("/x/health", s.healthCheckHandler).Methods(http.MethodGet)

	for _, route := range s.router.Routes() {
		m.HandleFunc(route.Path, s.forward).Methods(route.Method)
	}

	m.NotFoundHandler = http.HandlerFunc(s.forward)
	m.MethodNotAllowedHandler = http.HandlerFunc(s.forward)

	return m
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	return httpx.Chain(
		httpx.Recovery(s.logger),            // Outermost: catch panics
		httpx.RequestID,                     // Add request ID
		httpx.Logger(s.logger),              // Log requests
		httpx.CORS(s.config.AllowedOrigins), // CORS headers (allow all when empty)
	)(handler)
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"routes": len(s.router.Routes()),
	})
}

// forward converts r into a proxy event, dispatches it and writes the result.
func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	req, err := toProxyRequest(r)
	if err != nil {
		s.logger.WarnContext(r.Context(), "failed to read request body", "error", err.Error())
		httpx.WriteMessage(w, http.StatusBadRequest, "failed")
		return
	}

	resp, _ := s.router.Dispatch(r.Context(), req)
	if err := writeProxyResponse(w, resp); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to write response", "error", err.Error())
	}
}

// resourceOf returns the matched route template, or the raw path when mux
// found no route.
func resourceOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func toProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, httpx.MaxRequestBodySize+1))
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}

	resource := resourceOf(r)
	req := events.APIGatewayProxyRequest{
		Resource:          resource,
		Path:              r.URL.Path,
		HTTPMethod:        r.Method,
		Headers:           make(map[string]string, len(r.Header)),
		MultiValueHeaders: map[string][]string(r.Header.Clone()),
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:        httpx.GetRequestID(r.Context()),
			ResourcePath:     resource,
			HTTPMethod:       r.Method,
			Path:             r.URL.Path,
			Stage:            localStage,
			Protocol:         r.Proto,
			RequestTimeEpoch: time.Now().UnixMilli(),
			Identity: events.APIGatewayRequestIdentity{
				SourceIP:  sourceIP(r),
				UserAgent: r.UserAgent(),
			},
		},
	}

	for name := range r.Header {
		req.Headers[name] = r.Header.Get(name)
	}

	if query := r.URL.Query(); len(query) > 0 {
		req.QueryStringParameters = make(map[string]string, len(query))
		req.MultiValueQueryStringParameters = make(map[string][]string, len(query))
		for k, v := range query {
			req.QueryStringParameters[k] = v[len(v)-1]
			req.MultiValueQueryStringParameters[k] = v
		}
	}

	if vars := mux.Vars(r); len(vars) > 0 {
		req.PathParameters = vars
	}

	if utf8.Valid(body) {
		req.Body = string(body)
	} else {
		req.Body = base64.StdEncoding.EncodeToString(body)
		req.IsBase64Encoded = true
	}

	return req, nil
}

func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) error {
	for name, values := range resp.MultiValueHeaders {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	for name, v := range resp.Headers {
		w.Header().Set(name, v)
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return fmt.Errorf("decode response body: %w", err)
		}
		body = decoded
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(body)
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded, forcing close")
			return s.server.Close()
		}
		return err
	}

	return nil
}
