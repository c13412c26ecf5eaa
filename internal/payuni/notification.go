package payuni

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// TradeStatusPaid is the TradeStatus value for a completed payment.
const TradeStatusPaid = "1"

// Notification is the decoded content of a NotifyURL or ReturnURL delivery.
type Notification struct {
	Status      string
	Message     string
	MerID       string
	MerTradeNo  string
	TradeNo     string
	TradeAmt    int64
	TradeStatus string
	PaymentType string
	Raw         url.Values
}

// Paid reports whether the gateway reports the trade as paid.
func (n *Notification) Paid() bool {
	return n.TradeStatus == TradeStatusPaid
}

// ParseNotification authenticates the hash first and only then decrypts.
// Surrounding whitespace is stripped once here so the hash and the decryption see the same bytes.
func (c *Client) ParseNotification(encryptInfo, hashInfo string) (*Notification, error) {
	encryptInfo, hashInfo = strings.TrimSpace(encryptInfo), strings.TrimSpace(hashInfo)
	if encryptInfo == "" || hashInfo == "" {
		return nil, fmt.Errorf("%w: EncryptInfo and HashInfo are required", ErrMalformedPayload)
	}
	if err := c.Verify(encryptInfo, hashInfo); err != nil {
		return nil, err
	}
	values, err := c.Decrypt(encryptInfo)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		Status:      values.Get("Status"),
		Message:     values.Get("Message"),
		MerID:       values.Get("MerID"),
		MerTradeNo:  values.Get("MerTradeNo"),
		TradeNo:     values.Get("TradeNo"),
		TradeStatus: values.Get("TradeStatus"),
		PaymentType: values.Get("PaymentType"),
		Raw:         values,
	}
	if n.MerTradeNo == "" {
		return nil, fmt.Errorf("%w: MerTradeNo missing", ErrMalformedPayload)
	}
	amt := values.Get("TradeAmt")
	if amt == "" {
		// a paid trade without an amount cannot be reconciled
		if n.Paid() {
			return nil, fmt.Errorf("%w: TradeAmt missing on paid trade", ErrMalformedPayload)
		}
		return n, nil
	}
	parsed, err := strconv.ParseInt(amt, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: TradeAmt %q", ErrMalformedPayload, amt)
	}
	n.TradeAmt = parsed
	return n, nil
}
