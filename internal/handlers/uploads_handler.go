package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/doris-payments/internal/middleware"
	"github.com/imrishuroy/doris-payments/internal/storage"
	"github.com/imrishuroy/doris-payments/internal/validation"
)

// RegisterUploadRoutes registers the admin image upload helper when a bucket is configured.
func RegisterUploadRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Presigner == nil {
		return
	}
	v := validation.New()

	admin := r.Group("/admin", middleware.RequireBearer(cfg.AdminToken))
	admin.POST("/uploads/presign", func(c *gin.Context) {
		var req validation.PresignRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		res, err := cfg.Presigner.PresignPut(c.Request.Context(), req.Filename, req.ContentType)
		if errors.Is(err, storage.ErrUnsupportedType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_type"})
			return
		}
		if err != nil {
			cfg.Logger.ErrorContext(c.Request.Context(), "presign_failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "presign_failed"})
			return
		}
		c.JSON(http.StatusOK, res)
	})
}
