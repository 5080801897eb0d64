package formats

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"brandkit-backend/internal/imageconv"
	"brandkit-backend/internal/shared/auth"
	"brandkit-backend/internal/shared/server/middleware"
	"brandkit-backend/internal/shared/server/respond"
)

// PrewarmEnqueuer hands prewarm work to a background consumer.
type PrewarmEnqueuer interface {
	EnqueuePrewarm(ctx context.Context, assetID string, formats []string, requestID string) error
}

// Handler exposes the format cache over HTTP.
type Handler struct {
	Manager        *Manager
	Enqueuer       PrewarmEnqueuer
	PrewarmFormats []string
}

// NewHandler constructs a Handler. A nil enqueuer makes prewarm run inline.
func NewHandler(m *Manager, enqueuer PrewarmEnqueuer, prewarmFormats []string) *Handler {
	return &Handler{Manager: m, Enqueuer: enqueuer, PrewarmFormats: prewarmFormats}
}

// RegisterRoutes attaches format routes to an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/assets/:id/formats", h.list)
	rg.GET("/assets/:id/formats/:format", h.resolve)
	rg.GET("/assets/:id/formats/:format/info", h.info)
	rg.POST("/assets/:id/formats/prewarm", middleware.RequireRole(auth.RoleAdmin), h.prewarm)
}

type resolveResponse struct {
	AssetID string `json:"assetId"`
	Format  string `json:"format"`
	URL     string `json:"url"`
}

func (h *Handler) resolve(c *gin.Context) {
	assetID := c.Param("id")
	format := Normalize(c.Param("format"))
	c.Set(middleware.AssetIDKey, assetID)
	c.Set(middleware.FormatKey, format)

	url, err := h.Manager.ResolveFormat(c.Request.Context(), assetID, format)
	if err != nil {
		writeError(c, err)
		return
	}
	if redirect := c.Query("redirect"); redirect == "1" || strings.EqualFold(redirect, "true") {
		c.Redirect(http.StatusFound, url)
		return
	}
	respond.OK(c, resolveResponse{AssetID: assetID, Format: format, URL: url})
}

func (h *Handler) info(c *gin.Context) {
	assetID := c.Param("id")
	format := Normalize(c.Param("format"))
	c.Set(middleware.AssetIDKey, assetID)
	c.Set(middleware.FormatKey, format)

	entry, err := h.Manager.FormatInfo(c.Request.Context(), assetID, format)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, entry)
}

func (h *Handler) list(c *gin.Context) {
	assetID := c.Param("id")
	c.Set(middleware.AssetIDKey, assetID)

	summary, err := h.Manager.Summarize(c.Request.Context(), assetID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, summary)
}

type prewarmRequest struct {
	Formats []string `json:"formats"`
}

type prewarmItem struct {
	Format string `json:"format"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

func (h *Handler) prewarm(c *gin.Context) {
	assetID := c.Param("id")
	c.Set(middleware.AssetIDKey, assetID)

	var req prewarmRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	wanted := dedupe(req.Formats)
	if len(wanted) == 0 {
		wanted = dedupe(h.PrewarmFormats)
	}
	for _, f := range wanted {
		if !Valid(f) {
			respond.Error(c, http.StatusBadRequest, "unsupported_conversion", "unknown format", gin.H{"format": f})
			return
		}
	}

	ctx := c.Request.Context()
	if h.Enqueuer != nil {
		// Unknown assets are rejected before anything is queued.
		if _, err := h.Manager.Summarize(ctx, assetID); err != nil {
			writeError(c, err)
			return
		}
		if err := h.Enqueuer.EnqueuePrewarm(ctx, assetID, wanted, middleware.RequestIDFromContext(c)); err != nil {
			respond.Error(c, http.StatusBadGateway, "queue_unavailable", "failed to enqueue prewarm", nil)
			return
		}
		respond.JSON(c, http.StatusAccepted, gin.H{"assetId": assetID, "formats": wanted, "queued": true})
		return
	}

	results, err := h.Manager.Prewarm(ctx, assetID, wanted)
	if err != nil && len(results) == 0 {
		writeError(c, err)
		return
	}
	items := make([]prewarmItem, 0, len(results))
	for _, r := range results {
		item := prewarmItem{Format: r.Format, URL: r.URL}
		if r.Err != nil {
			item.Error = r.Err.Error()
			item.Code = Kind(r.Err)
		}
		items = append(items, item)
	}
	respond.OK(c, gin.H{"assetId": assetID, "queued": false, "results": items})
}

// StatusFor maps a format cache error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrAssetNotFound), errors.Is(err, ErrFormatNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupportedConversion),
		errors.Is(err, imageconv.ErrUnsupportedTargetFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrOriginalURLMissing):
		return http.StatusConflict
	case errors.Is(err, ErrDecodeFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrEncodedTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrStoreWriteFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "failed to resolve format"
	}
	var details interface{}
	var re *ResolveError
	if errors.As(err, &re) {
		details = gin.H{"assetId": re.AssetID, "format": re.Format, "op": re.Op}
	}
	respond.Error(c, status, Kind(err), message, details)
}
