package payuni

import (
	"fmt"
	"net/url"
	"strconv"
)

// PaymentMethod selects which payment toggles are enabled on the hosted page.
type PaymentMethod string

const (
	MethodAny    PaymentMethod = ""
	MethodCredit PaymentMethod = "credit"
	MethodATM    PaymentMethod = "atm"
	MethodCVS    PaymentMethod = "cvs"
)

var methodFields = map[PaymentMethod]string{
	MethodCredit: "Credit",
	MethodATM:    "ATM",
	MethodCVS:    "CVS",
}

// Checkout carries the order fields that go into the envelope.
type Checkout struct {
	OrderNo     string
	Amount      int64
	Description string
	Email       string
	ReturnURL   string
	NotifyURL   string
	BackURL     string
	Method      PaymentMethod
}

// Form is the parameter set the browser POSTs to Action.
type Form struct {
	Action      string `json:"action"`
	MerID       string `json:"MerID"`
	Version     string `json:"Version"`
	EncryptInfo string `json:"EncryptInfo"`
	HashInfo    string `json:"HashInfo"`
}

// Fields returns the form inputs keyed by their gateway names.
func (f *Form) Fields() map[string]string {
	return map[string]string{
		"MerID":       f.MerID,
		"Version":     f.Version,
		"EncryptInfo": f.EncryptInfo,
		"HashInfo":    f.HashInfo,
	}
}

// Values builds the plaintext field map for co, stamped with the client clock.
func (c *Client) Values(co Checkout) (url.Values, error) {
	if co.OrderNo == "" {
		return nil, fmt.Errorf("payuni: order number is required")
	}
	if co.Amount <= 0 {
		return nil, fmt.Errorf("payuni: amount must be positive, got %d", co.Amount)
	}

	v := url.Values{}
	v.Set("MerID", c.merchantID)
	v.Set("MerTradeNo", co.OrderNo)
	v.Set("TradeAmt", strconv.FormatInt(co.Amount, 10))
	v.Set("Timestamp", strconv.FormatInt(c.now().Unix(), 10))
	v.Set("ProdDesc", co.Description)
	if co.Email != "" {
		v.Set("UsrMail", co.Email)
	}
	if co.ReturnURL != "" {
		v.Set("ReturnURL", co.ReturnURL)
	}
	if co.NotifyURL != "" {
		v.Set("NotifyURL", co.NotifyURL)
	}
	if co.BackURL != "" {
		v.Set("BackURL", co.BackURL)
	}

	if co.Method == MethodAny {
		for _, field := range methodFields {
			v.Set(field, "1")
		}
	} else {
		field, ok := methodFields[co.Method]
		if !ok {
			return nil, fmt.Errorf("payuni: unknown payment method %q", co.Method)
		}
		v.Set(field, "1")
	}
	return v, nil
}

// BuildCheckout encrypts and hashes the checkout fields into a gateway form.
func (c *Client) BuildCheckout(co Checkout) (*Form, error) {
	values, err := c.Values(co)
	if err != nil {
		return nil, err
	}
	encryptInfo, err := c.Encrypt(values)
	if err != nil {
		return nil, err
	}
	return &Form{
		Action:      c.gatewayURL,
		MerID:       c.merchantID,
		Version:     Version,
		EncryptInfo: encryptInfo,
		HashInfo:    c.Hash(encryptInfo),
	}, nil
}
