package links

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/sundayezeilo/linkservice/internal/errx"
	"github.com/sundayezeilo/linkservice/internal/httpx"
	"github.com/sundayezeilo/linkservice/internal/router"
)

// Route paths as API Gateway reports them in the request context.
const (
	PathLinks = "/links"
	PathLink  = "/links/{id}"
)

var (
	errMissingID = errors.New("missing path parameter id")
	errNotObject = errors.New("request body is not a JSON object")
)

// linkRequest is the body of POST /links and PUT /links/{id}.
type linkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type dataResponse struct {
	Data any `json:"data"`
}

// Handler serves the link routes.
type Handler struct {
	repo   Repository
	logger *slog.Logger
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Repository Repository
	Logger     *slog.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		repo:   cfg.Repository,
		logger: logger,
	}
}

// Register adds the five link routes to rt.
func (h *Handler) Register(rt *router.Router) {
	rt.Handle(http.MethodGet, PathLinks, h.ListLinks)
	rt.Handle(http.MethodGet, PathLink, h.GetLink)
	rt.Handle(http.MethodPost, PathLinks, h.CreateLink)
	rt.Handle(http.MethodPut, PathLink, h.UpdateLink)
	rt.Handle(http.MethodDelete, PathLink, h.DeleteLink)
}

// ListLinks handles GET /links.
func (h *Handler) ListLinks(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	links, err := h.repo.List(ctx)
	if err != nil {
		return h.failure(ctx, req, err)
	}
	return router.JSON(http.StatusOK, dataResponse{Data: links})
}

// GetLink handles GET /links/{id}.
func (h *Handler) GetLink(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id, err := pathID(req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	link, err := h.repo.Get(ctx, id)
	if err != nil {
		return h.failure(ctx, req, err)
	}
	return router.JSON(http.StatusOK, dataResponse{Data: link})
}

// CreateLink handles POST /links.
func (h *Handler) CreateLink(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body, err := decodeLinkRequest(req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	link, err := h.repo.Create(ctx, body.Title, body.URL)
	if err != nil {
		return h.failure(ctx, req, err)
	}

	h.logger.InfoContext(ctx, "link created",
		"request_id", req.RequestContext.RequestID,
		"link_id", link.ID,
	)
	return router.JSON(http.StatusOK, dataResponse{Data: link})
}

// UpdateLink handles PUT /links/{id}. Title and url are replaced wholesale.
func (h *Handler) UpdateLink(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id, err := pathID(req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	body, err := decodeLinkRequest(req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	link, err := h.repo.Update(ctx, id, body.Title, body.URL)
	if err != nil {
		return h.failure(ctx, req, err)
	}
	return router.JSON(http.StatusOK, dataResponse{Data: link})
}

// DeleteLink handles DELETE /links/{id}. Deleting an absent id succeeds.
func (h *Handler) DeleteLink(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id, err := pathID(req)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return h.failure(ctx, req, err)
	}
	return router.JSON(http.StatusOK, struct{}{})
}

// failure renders a repository error as {"message": ...}.
func (h *Handler) failure(ctx context.Context, req events.APIGatewayProxyRequest, err error) (events.APIGatewayProxyResponse, error) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"request_id", req.RequestContext.RequestID,
		"error", err.Error(),
		"error_kind", kind.String(),
		"operation", errx.OpOf(err),
	}

	switch kind {
	case errx.NotFound, errx.Invalid, errx.Conflict:
		h.logger.WarnContext(ctx, "link request rejected", logAttrs...)
	default:
		h.logger.ErrorContext(ctx, "link request failed", logAttrs...)
	}

	return router.Message(httpx.ErrorKindToStatus(kind), httpx.ErrorKindToMessage(kind))
}

func pathID(req events.APIGatewayProxyRequest) (string, error) {
	id, ok := req.PathParameters["id"]
	if !ok {
		return "", errMissingID
	}
	return id, nil
}

func decodeLinkRequest(req events.APIGatewayProxyRequest) (linkRequest, error) {
	raw, err := router.Body(req)
	if err != nil {
		return linkRequest{}, err
	}
	// Decoding into a pointer tells a JSON null apart from an empty object.
	body, err := httpx.DecodeJSON[*linkRequest](raw)
	if err != nil {
		return linkRequest{}, err
	}
	if body == nil {
		return linkRequest{}, errNotObject
	}
	return *body, nil
}
