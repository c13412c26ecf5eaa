package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterCourseRoutes registers the public catalog.
func RegisterCourseRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.GET("/courses", func(c *gin.Context) {
		list, err := cfg.Courses.List(c.Request.Context())
		if err != nil {
			cfg.Logger.ErrorContext(c.Request.Context(), "list_courses_failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_courses_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"courses": list})
	})
}
