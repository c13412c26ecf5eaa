package notifylog

import "time"

// Status values for notification entries
const (
	StatusReceived     = "received"
	StatusHandled      = "handled"
	StatusHandleFailed = "handle_failed"
)

// Entry is one authenticated gateway delivery, keyed by its HashInfo so that
// byte-identical redeliveries land on the same record.
type Entry struct {
	NotificationID string    `dynamodbav:"notification_id"` // PK (HashInfo)
	Source         string    `dynamodbav:"source"`          // notify | return
	OrderNo        string    `dynamodbav:"order_no,omitempty"`
	TradeNo        string    `dynamodbav:"trade_no,omitempty"`
	TradeStatus    string    `dynamodbav:"trade_status,omitempty"`
	Status         string    `dynamodbav:"status"`
	Outcome        string    `dynamodbav:"outcome,omitempty"`
	Note           string    `dynamodbav:"note,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}
