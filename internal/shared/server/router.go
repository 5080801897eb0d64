package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"brandkit-backend/internal/assets"
	"brandkit-backend/internal/formats"
	"brandkit-backend/internal/shared/config"
	"brandkit-backend/internal/shared/metrics"
	"brandkit-backend/internal/shared/server/middleware"
	"brandkit-backend/internal/shared/server/respond"
	"brandkit-backend/internal/shared/storage/object"
)

// Rate limit groups.
const (
	RateGroupDefault = "DEFAULT"
	RateGroupResolve = "RESOLVE"
	RateGroupUpload  = "UPLOAD"
)

// RouterDeps carries the handlers and stores the router mounts.
type RouterDeps struct {
	Config         config.Config
	AssetsHandler  *assets.Handler
	FormatsHandler *formats.Handler
	// Files serves GET /files/*key when set; only the local object store needs it.
	Files       object.ObjectStore
	RateLimits  map[string]middleware.RateLimitRule
	RateLimiter *middleware.RateLimiter
}

// DefaultRateLimits returns the per-user limits applied to the authenticated API.
func DefaultRateLimits() map[string]middleware.RateLimitRule {
	return map[string]middleware.RateLimitRule{
		RateGroupDefault: {Rate: 20, Burst: 60},
		RateGroupResolve: {Rate: 5, Burst: 20},
		RateGroupUpload:  {Rate: 0.5, Burst: 5},
	}
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())
	if deps.Files != nil {
		r.GET("/files/*key", filesHandler(deps.Files))
	}

	public := r.Group("/api/v1")
	public.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	rules := deps.RateLimits
	if rules == nil {
		rules = DefaultRateLimits()
	}
	api := r.Group("/api/v1")
	api.Use(
		middleware.Auth(deps.Config.Env),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        rules,
			DefaultGroup: RateGroupDefault,
			Limiter:      deps.RateLimiter,
			GroupFor: middleware.GroupByRoute(map[string]string{
				"GET /api/v1/assets/:id/formats/:format": RateGroupResolve,
				"POST /api/v1/assets":                    RateGroupUpload,
				"PUT /api/v1/assets/:id/file":            RateGroupUpload,
			}),
		}),
	)
	registerMeRoutes(api)
	if deps.AssetsHandler != nil {
		deps.AssetsHandler.RegisterRoutes(api)
	}
	if deps.FormatsHandler != nil {
		deps.FormatsHandler.RegisterRoutes(api)
	}

	return r
}

func filesHandler(store object.ObjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		rc, err := store.Open(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, object.ErrNotFound) {
				respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
				return
			}
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file key", nil)
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(path.Ext(key))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Header("Content-Type", contentType)
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		if rs, ok := rc.(io.ReadSeeker); ok {
			http.ServeContent(c.Writer, c.Request, path.Base(key), time.Time{}, rs)
			return
		}
		c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
