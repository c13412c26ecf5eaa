package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type orderView struct {
	OrderNo     string     `json:"order_no"`
	Status      string     `json:"status"`
	Amount      int64      `json:"amount"`
	ItemSummary string     `json:"item_summary"`
	CourseSlugs []string   `json:"course_slugs"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RegisterOrdersRoutes registers the shopper-facing order lookup.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.GET("/orders/:order_no", func(c *gin.Context) {
		ctx := c.Request.Context()

		o, err := cfg.Orders.Get(ctx, c.Param("order_no"))
		if err != nil {
			cfg.Logger.ErrorContext(ctx, "get_order_failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "get_order_failed"})
			return
		}
		// unknown order and wrong email look the same to the caller
		email := c.Query("email")
		if o == nil || email == "" || !strings.EqualFold(o.Email, email) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}

		c.JSON(http.StatusOK, orderView{
			OrderNo:     o.OrderNo,
			Status:      o.Status,
			Amount:      o.Amount,
			ItemSummary: o.ItemSummary,
			CourseSlugs: o.CourseSlugs,
			PaidAt:      o.PaidAt,
			CreatedAt:   o.CreatedAt,
		})
	})
}
