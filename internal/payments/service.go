// Package payments turns carts into gateway checkouts and reconciles gateway
// notifications into order state.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/imrishuroy/doris-payments/internal/courses"
	"github.com/imrishuroy/doris-payments/internal/metrics"
	"github.com/imrishuroy/doris-payments/internal/notifylog"
	"github.com/imrishuroy/doris-payments/internal/orders"
	"github.com/imrishuroy/doris-payments/internal/payuni"
)

// Outcome is the result of reconciling one authenticated notification.
type Outcome string

const (
	OutcomePaid         Outcome = "paid"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnknownOrder Outcome = "unknown_order"
)

// maxDescriptionRunes is the gateway's ProdDesc limit.
const maxDescriptionRunes = 100

var (
	ErrUnknownCourse = errors.New("unknown course")
	ErrEmptyCart     = errors.New("cart is empty")
)

// Catalog resolves course slugs to priced courses.
type Catalog interface {
	Get(ctx context.Context, slug string) (*courses.Course, error)
}

// NotificationLog records authenticated deliveries.
type NotificationLog interface {
	Record(ctx context.Context, e notifylog.Entry) (bool, error)
	MarkHandled(ctx context.Context, id, outcome string) error
	MarkApplied(ctx context.Context, id, outcome string) error
	MarkFailed(ctx context.Context, id, note string) error
}

// Config groups the collaborators of Service. Log and Metrics may be nil.
type Config struct {
	Gateway     *payuni.Client
	Orders      orders.Repository
	Catalog     Catalog
	Log         NotificationLog
	Metrics     metrics.Publisher
	Logger      *slog.Logger
	OrderPrefix string
	NotifyURL   string
	ReturnURL   string
	BackURL     string
	Now         func() time.Time
}

type Service struct {
	gateway   *payuni.Client
	orders    orders.Repository
	catalog   Catalog
	log       NotificationLog
	metrics   metrics.Publisher
	logger    *slog.Logger
	numbers   orders.NumberGenerator
	notifyURL string
	returnURL string
	backURL   string
	now       func() time.Time
}

func NewService(cfg Config) *Service {
	s := &Service{
		gateway:   cfg.Gateway,
		orders:    cfg.Orders,
		catalog:   cfg.Catalog,
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		notifyURL: cfg.NotifyURL,
		returnURL: cfg.ReturnURL,
		backURL:   cfg.BackURL,
		now:       cfg.Now,
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.numbers = orders.NumberGenerator{Prefix: cfg.OrderPrefix, Now: s.now}
	return s
}

// CheckoutInput is a validated cart.
type CheckoutInput struct {
	Email         string
	CourseSlugs   []string
	PaymentMethod payuni.PaymentMethod
}

// CheckoutResult is the stored pending order and the gateway form for it.
type CheckoutResult struct {
	Order orders.Order
	Form  *payuni.Form
}

// Checkout prices the cart from the catalog, stores a pending order and builds its gateway form.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if len(in.CourseSlugs) == 0 {
		return nil, ErrEmptyCart
	}

	var (
		amount int64
		titles []string
	)
	for _, slug := range in.CourseSlugs {
		c, err := s.catalog.Get(ctx, slug)
		if errors.Is(err, courses.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCourse, slug)
		}
		if err != nil {
			return nil, fmt.Errorf("lookup course %s: %w", slug, err)
		}
		amount += c.Price
		titles = append(titles, c.Title)
	}

	now := s.now().UTC()
	order := orders.Order{
		ID:            uuid.NewString(),
		Status:        orders.StatusPending,
		Amount:        amount,
		ItemSummary:   truncateRunes(strings.Join(titles, ", "), maxDescriptionRunes),
		CourseSlugs:   in.CourseSlugs,
		Email:         in.Email,
		PaymentMethod: string(in.PaymentMethod),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order, err := orders.CreateWithNumber(ctx, s.orders, s.numbers, order)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	form, err := s.gateway.BuildCheckout(payuni.Checkout{
		OrderNo:     order.OrderNo,
		Amount:      order.Amount,
		Description: order.ItemSummary,
		Email:       order.Email,
		ReturnURL:   s.returnURL,
		NotifyURL:   s.notifyURL,
		BackURL:     s.backURL,
		Method:      in.PaymentMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout: %w", err)
	}

	s.logger.InfoContext(ctx, "checkout_created", "order_no", order.OrderNo, "amount", order.Amount, "courses", len(order.CourseSlugs))
	s.metrics.Count(ctx, "CheckoutCreated", nil)
	return &CheckoutResult{Order: order, Form: form}, nil
}

// HandleNotification authenticates a NotifyURL delivery and applies it to the order.
// A returned error means the delivery was rejected (payuni.ErrHashMismatch,
// payuni.ErrMalformedPayload) or the store failed; every other case is an Outcome.
func (s *Service) HandleNotification(ctx context.Context, encryptInfo, hashInfo string) (Outcome, error) {
	n, err := s.authenticate(encryptInfo, hashInfo)
	if err != nil {
		s.reject(ctx, err)
		return "", err
	}
	logger := s.logger.With("order_no", n.MerTradeNo, "trade_no", n.TradeNo, "trade_status", n.TradeStatus)

	id := strings.ToUpper(strings.TrimSpace(hashInfo))
	s.record(ctx, logger, notifylog.Entry{
		NotificationID: id,
		Source:         "notify",
		OrderNo:        n.MerTradeNo,
		TradeNo:        n.TradeNo,
		TradeStatus:    n.TradeStatus,
	})

	outcome, err := s.reconcile(ctx, logger, n)
	if err != nil {
		logger.ErrorContext(ctx, "reconcile_failed", "error", err)
		s.metrics.Count(ctx, "NotificationFailed", nil)
		if s.log != nil {
			if lerr := s.log.MarkFailed(ctx, id, err.Error()); lerr != nil {
				logger.WarnContext(ctx, "notification_log_failed", "error", lerr)
			}
		}
		return "", err
	}

	logger.InfoContext(ctx, "notification_handled", "outcome", string(outcome))
	s.metrics.Count(ctx, "NotificationHandled", map[string]string{"Outcome": string(outcome)})
	if s.log != nil {
		mark := s.log.MarkHandled
		if outcome == OutcomePaid {
			mark = s.log.MarkApplied
		}
		if lerr := mark(ctx, id, string(outcome)); lerr != nil {
			logger.WarnContext(ctx, "notification_log_failed", "error", lerr)
		}
	}
	return outcome, nil
}

func (s *Service) reconcile(ctx context.Context, logger *slog.Logger, n *payuni.Notification) (Outcome, error) {
	if !n.Paid() {
		return OutcomeIgnored, nil
	}

	order, err := s.orders.Get(ctx, n.MerTradeNo)
	if err != nil {
		return "", fmt.Errorf("get order %s: %w", n.MerTradeNo, err)
	}
	if order == nil {
		logger.WarnContext(ctx, "notification_for_unknown_order")
		return OutcomeUnknownOrder, nil
	}
	if n.TradeAmt != order.Amount {
		logger.WarnContext(ctx, "notification_amount_mismatch", "trade_amt", n.TradeAmt, "order_amount", order.Amount)
		return OutcomeIgnored, nil
	}

	applied, err := s.orders.MarkPaid(ctx, n.MerTradeNo, n.TradeNo)
	if err != nil {
		return "", fmt.Errorf("mark order %s paid: %w", n.MerTradeNo, err)
	}
	if !applied {
		return OutcomeDuplicate, nil
	}
	return OutcomePaid, nil
}

// DecodeReturn authenticates the browser return leg. It never changes state.
func (s *Service) DecodeReturn(encryptInfo, hashInfo string) (*payuni.Notification, error) {
	return s.authenticate(encryptInfo, hashInfo)
}

func (s *Service) authenticate(encryptInfo, hashInfo string) (*payuni.Notification, error) {
	n, err := s.gateway.ParseNotification(encryptInfo, hashInfo)
	if err != nil {
		return nil, err
	}
	if n.MerID != "" && n.MerID != s.gateway.MerchantID() {
		return nil, fmt.Errorf("%w: MerID %q", payuni.ErrMalformedPayload, n.MerID)
	}
	return n, nil
}

func (s *Service) reject(ctx context.Context, err error) {
	reason := "malformed_payload"
	if errors.Is(err, payuni.ErrHashMismatch) {
		reason = "hash_mismatch"
	}
	s.logger.WarnContext(ctx, "notification_rejected", "reason", reason, "error", err)
	s.metrics.Count(ctx, "NotificationRejected", map[string]string{"Reason": reason})
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, e notifylog.Entry) {
	if s.log == nil {
		return
	}
	first, err := s.log.Record(ctx, e)
	if err != nil {
		logger.WarnContext(ctx, "notification_log_failed", "error", err)
		return
	}
	if !first {
		logger.InfoContext(ctx, "notification_redelivered")
	}
}

// ReturnStatus maps a decoded return leg to the storefront result page status.
func ReturnStatus(n *payuni.Notification) string {
	switch n.TradeStatus {
	case payuni.TradeStatusPaid:
		return "paid"
	case "0":
		return "pending"
	default:
		return "failed"
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
