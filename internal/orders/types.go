package orders

import (
	"context"
	"errors"
	"time"
)

// Order statuses. pending -> paid is the only transition.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

var (
	// ErrDuplicateOrderNo is returned when Create finds the order number taken.
	ErrDuplicateOrderNo = errors.New("order number already exists")
)

// Order is one checkout attempt. It is keyed by OrderNo in DynamoDB and by ID in SQL.
type Order struct {
	ID             string     `dynamodbav:"id" gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	OrderNo        string     `dynamodbav:"order_no" gorm:"column:order_no;type:varchar(25);not null;uniqueIndex:ux_orders_order_no" json:"order_no"` // PK in DynamoDB
	Status         string     `dynamodbav:"status" gorm:"column:status;type:varchar(16);not null" json:"status"`
	Amount         int64      `dynamodbav:"amount" gorm:"column:amount;not null" json:"amount"`
	ItemSummary    string     `dynamodbav:"item_summary" gorm:"column:item_summary;type:varchar(255);not null" json:"item_summary"`
	CourseSlugs    []string   `dynamodbav:"course_slugs,stringset,omitempty" gorm:"column:course_slugs;serializer:json" json:"course_slugs"`
	Email          string     `dynamodbav:"email" gorm:"column:email;type:varchar(255);not null" json:"email"`
	PaymentMethod  string     `dynamodbav:"payment_method,omitempty" gorm:"column:payment_method;type:varchar(16)" json:"payment_method,omitempty"`
	GatewayTradeNo string     `dynamodbav:"gateway_trade_no,omitempty" gorm:"column:gateway_trade_no;type:varchar(64)" json:"gateway_trade_no,omitempty"`
	PaidAt         *time.Time `dynamodbav:"paid_at,omitempty" gorm:"column:paid_at" json:"paid_at,omitempty"`
	CreatedAt      time.Time  `dynamodbav:"created_at" gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt      time.Time  `dynamodbav:"updated_at" gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Repository is the persistence contract shared by the DynamoDB and SQL stores.
type Repository interface {
	// Create persists a new order; ErrDuplicateOrderNo if the number is taken.
	Create(ctx context.Context, o Order) error
	// Get returns (nil, nil) when the order does not exist.
	Get(ctx context.Context, orderNo string) (*Order, error)
	// MarkPaid moves a pending order to paid. applied is false, with a nil error,
	// when the order is missing or no longer pending.
	MarkPaid(ctx context.Context, orderNo, gatewayTradeNo string) (applied bool, err error)
}
