package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/doris-payments/internal/payments"
	"github.com/imrishuroy/doris-payments/internal/payuni"
	"github.com/imrishuroy/doris-payments/internal/validation"
)

// notifyAck is the body the gateway expects once a notification is accepted.
const notifyAck = "SUCCESS"

// RegisterPaymentRoutes registers checkout and the two gateway callbacks.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/checkout", func(c *gin.Context) {
		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		res, err := cfg.Payments.Checkout(c.Request.Context(), payments.CheckoutInput{
			Email:         req.Email,
			CourseSlugs:   req.CourseSlugs,
			PaymentMethod: payuni.PaymentMethod(req.PaymentMethod),
		})
		if errors.Is(err, payments.ErrUnknownCourse) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown_course", "msg": err.Error()})
			return
		}
		if err != nil {
			cfg.Logger.ErrorContext(c.Request.Context(), "checkout_failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "checkout_failed"})
			return
		}

		if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
			c.HTML(http.StatusOK, "checkout", res.Form)
			return
		}
		c.Header("Location", "/orders/"+res.Order.OrderNo)
		c.JSON(http.StatusCreated, gin.H{
			"order_no": res.Order.OrderNo,
			"amount":   res.Order.Amount,
			"form": gin.H{
				"action": res.Form.Action,
				"fields": res.Form.Fields(),
			},
		})
	})

	r.POST("/payments/notify", func(c *gin.Context) {
		encryptInfo, hashInfo := c.PostForm("EncryptInfo"), c.PostForm("HashInfo")
		if encryptInfo == "" || hashInfo == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_fields"})
			return
		}

		_, err := cfg.Payments.HandleNotification(c.Request.Context(), encryptInfo, hashInfo)
		switch {
		case err == nil:
			c.String(http.StatusOK, notifyAck)
		case errors.Is(err, payuni.ErrHashMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "hash_mismatch"})
		case errors.Is(err, payuni.ErrMalformedPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_payload"})
		default:
			// non-2xx makes the gateway redeliver
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile_failed"})
		}
	})

	r.POST("/payments/return", func(c *gin.Context) {
		q := url.Values{}
		n, err := cfg.Payments.DecodeReturn(c.PostForm("EncryptInfo"), c.PostForm("HashInfo"))
		if err != nil {
			cfg.Logger.WarnContext(c.Request.Context(), "return_rejected", "error", err)
			q.Set("status", "invalid")
		} else {
			q.Set("order_no", n.MerTradeNo)
			q.Set("status", payments.ReturnStatus(n))
		}
		c.Redirect(http.StatusSeeOther, strings.TrimRight(cfg.FrontendURL, "/")+"/checkout/result?"+q.Encode())
	})
}
