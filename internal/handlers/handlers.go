// Package handlers wires the HTTP surface onto a gin engine.
package handlers

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/doris-payments/internal/courses"
	"github.com/imrishuroy/doris-payments/internal/middleware"
	"github.com/imrishuroy/doris-payments/internal/orders"
	"github.com/imrishuroy/doris-payments/internal/payments"
	"github.com/imrishuroy/doris-payments/internal/storage"
)

// CourseLister lists the published catalog.
type CourseLister interface {
	List(ctx context.Context) ([]courses.Course, error)
}

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Payments    *payments.Service
	Orders      orders.Repository
	Courses     CourseLister
	Presigner   *storage.Presigner // nil disables admin uploads
	AdminToken  string
	FrontendURL string
	Logger      *slog.Logger
}

// NewRouter builds the engine with shared middleware and every route registered.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(cfg.Logger), middleware.Recovery(cfg.Logger))
	r.SetHTMLTemplate(template.Must(template.New("checkout").Parse(checkoutFormHTML)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterCourseRoutes(r, cfg)
	RegisterPaymentRoutes(r, cfg)
	RegisterOrdersRoutes(r, cfg)
	RegisterUploadRoutes(r, cfg)
	return r
}

// checkoutFormHTML posts the gateway fields as soon as the page loads.
const checkoutFormHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Redirecting to payment</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
<input type="hidden" name="MerID" value="{{.MerID}}">
<input type="hidden" name="Version" value="{{.Version}}">
<input type="hidden" name="EncryptInfo" value="{{.EncryptInfo}}">
<input type="hidden" name="HashInfo" value="{{.HashInfo}}">
<noscript><button type="submit">Continue to payment</button></noscript>
</form>
</body>
</html>`
