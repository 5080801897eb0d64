package assets

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"brandkit-backend/internal/shared/auth"
	"brandkit-backend/internal/shared/server/middleware"
	"brandkit-backend/internal/shared/server/respond"
)

const maxUploadSize = 25 << 20 // 25MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches asset routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	admin := middleware.RequireRole(auth.RoleAdmin)
	rg.GET("/assets", h.list)
	rg.POST("/assets", admin, h.upload)
	rg.GET("/assets/:id", h.get)
	rg.PATCH("/assets/:id", admin, h.edit)
	rg.PUT("/assets/:id/file", admin, h.replace)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	a, err := h.Svc.Upload(c.Request.Context(), UploadInput{
		Name:       c.PostForm("name"),
		Category:   c.PostForm("category"),
		FileName:   fileHeader.Filename,
		UploadedBy: middleware.UserIDFromContext(c),
		Size:       fileHeader.Size,
		Body:       file,
		RequestID:  middleware.RequestIDFromContext(c),
	})
	if err != nil {
		writeError(c, err, "failed to upload asset")
		return
	}
	c.Set(middleware.AssetIDKey, a.ID)
	respond.Created(c, toResponse(a))
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.AssetIDKey, id)

	a, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to fetch asset")
		return
	}
	respond.OK(c, toResponse(a))
}

func (h *Handler) list(c *gin.Context) {
	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 100 {
		limit = 100
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	items, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err, "failed to list assets")
		return
	}

	category := NormalizeCategory(c.Query("category"))
	resp := make([]AssetResponse, 0, len(items))
	for _, a := range items {
		if category != "" && a.Category != category {
			continue
		}
		resp = append(resp, toResponse(a))
	}
	respond.OK(c, resp)
}

type editRequest struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
}

func (h *Handler) edit(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.AssetIDKey, id)

	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	a, err := h.Svc.Edit(c.Request.Context(), id, EditInput{Name: req.Name, Category: req.Category})
	if err != nil {
		writeError(c, err, "failed to update asset")
		return
	}
	respond.OK(c, toResponse(a))
}

func (h *Handler) replace(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.AssetIDKey, id)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	a, err := h.Svc.Replace(c.Request.Context(), id, ReplaceInput{
		FileName:   fileHeader.Filename,
		UploadedBy: middleware.UserIDFromContext(c),
		Size:       fileHeader.Size,
		Body:       file,
		RequestID:  middleware.RequestIDFromContext(c),
	})
	if err != nil {
		writeError(c, err, "failed to replace asset file")
		return
	}
	respond.OK(c, toResponse(a))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "asset_not_found", "asset not found", nil)
	case errors.Is(err, ErrInvalidCategory):
		respond.Error(c, http.StatusBadRequest, "invalid_category", err.Error(), gin.H{"allowed": categoryList()})
	case errors.Is(err, ErrUnsupportedFile):
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_file", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}

func categoryList() []string {
	return []string{CategoryLogo, CategoryTypography, CategoryColor, CategoryTemplate, CategoryIcon}
}
