// Package api is the HTTP adapter of the rule service.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TrasparenzAI/rule-service/internal/auth"
	"github.com/TrasparenzAI/rule-service/internal/catalog"
	"github.com/TrasparenzAI/rule-service/internal/domain"
	"github.com/TrasparenzAI/rule-service/internal/logger"
	"github.com/TrasparenzAI/rule-service/internal/matcher"
	"github.com/TrasparenzAI/rule-service/internal/server"
)

// Query parameters of the classification endpoints.
const (
	paramRule = "ruleName"
	paramRoot = "rootRule"
	paramURL  = "url"
	paramTree = "root"
)

// Matcher classifies pages.
type Matcher interface {
	Execute(ctx context.Context, req matcher.Request) (domain.Outcome, error)
	ExecuteChildren(ctx context.Context, req matcher.Request) ([]domain.Outcome, error)
}

// Handler serves the /v1/rules endpoints.
type Handler struct {
	matcher      Matcher
	catalog      *catalog.Catalog
	maxBodyBytes int64
}

// NewHandler creates the handler. maxBodyBytes <= 0 leaves request bodies unbounded.
func NewHandler(m Matcher, cat *catalog.Catalog, maxBodyBytes int64) *Handler {
	return &Handler{matcher: m, catalog: cat, maxBodyBytes: maxBodyBytes}
}

// Register mounts the routes under /v1, protected by a bearer token when
// jwtSecret is set.
func (h *Handler) Register(router gin.IRouter, jwtSecret string) {
	rules := router.Group("/v1/rules", auth.Middleware(jwtSecret))
	rules.GET("", h.Tree)
	rules.POST("", h.Classify)
	rules.POST("/child", h.ClassifyChildren)
}

// Tree returns the rule trees keyed by root name, or the single tree named by ?root=.
func (h *Handler) Tree(c *gin.Context) {
	roots := h.catalog.Roots()
	if root := c.Query(paramTree); root != "" {
		roots = []string{root}
	}

	trees := make(map[string]catalog.Node, len(roots))
	for _, root := range roots {
		node, err := h.catalog.Tree(root)
		if err != nil {
			h.fail(c, err)
			return
		}
		trees[root] = node
	}
	c.JSON(http.StatusOK, trees)
}

// Classify resolves one rule against the posted page.
func (h *Handler) Classify(c *gin.Context) {
	req, ok := h.request(c)
	if !ok {
		return
	}

	outcome, err := h.matcher.Execute(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDTO(outcome))
}

// ClassifyChildren resolves every child of a rule against the posted page.
// It answers 404 when no child was found.
func (h *Handler) ClassifyChildren(c *gin.Context) {
	req, ok := h.request(c)
	if !ok {
		return
	}

	outcomes, err := h.matcher.ExecuteChildren(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !anyFound(outcomes) {
		c.JSON(http.StatusNotFound, ErrorDTO{Error: "no child rule found", RequestID: server.RequestID(c)})
		return
	}
	c.JSON(http.StatusOK, toDTOs(outcomes))
}

func (h *Handler) request(c *gin.Context) (matcher.Request, bool) {
	body := c.Request.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBodyBytes)
	}
	content, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, domain.ErrContentTooLarge)
			return matcher.Request{}, false
		}
		h.badRequest(c, "cannot read request body")
		return matcher.Request{}, false
	}

	req := matcher.Request{
		Content: string(content),
		URL:     c.Query(paramURL),
		Root:    c.Query(paramRoot),
		Rule:    c.Query(paramRule),
	}
	if req.Content == "" && req.URL == "" {
		h.badRequest(c, "page content or url is required")
		return matcher.Request{}, false
	}
	return req, true
}

// fail maps matcher errors to status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRuleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrContentTooLarge):
		status = domain.StatusContentTooLarge
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, ErrorDTO{Error: "cannot classify page", RequestID: server.RequestID(c)})
		return
	}
	logger.FromContext(c.Request.Context()).Debug("Classification rejected",
		logger.Int("status", status),
		logger.Error(err),
	)
	c.JSON(status, ErrorDTO{Error: err.Error(), RequestID: server.RequestID(c)})
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorDTO{Error: msg, RequestID: server.RequestID(c)})
}

func anyFound(outcomes []domain.Outcome) bool {
	for _, o := range outcomes {
		if domain.Found(o) {
			return true
		}
	}
	return false
}
