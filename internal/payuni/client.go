// Package payuni implements the PAYUNi UPP envelope: AES-256-GCM encrypted, SHA-256 hashed
// parameter bundles exchanged with the gateway on checkout and on payment notification.
//
// The gateway protocol reuses one IV for every message under the merchant key. That is a
// property of the gateway and has to be kept for interoperability.
package payuni

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// Version is the UPP protocol version sent with every checkout.
	Version = "1.0"

	SandboxURL    = "https://sandbox-api.payuni.com.tw/api/upp"
	ProductionURL = "https://api.payuni.com.tw/api/upp"

	KeySize = 32
	IVSize  = 16

	separator = ":::"
)

var (
	ErrInvalidKey        = errors.New("payuni: hash key must be 32 bytes")
	ErrInvalidIV         = errors.New("payuni: hash iv must be 16 bytes")
	ErrMissingMerchantID = errors.New("payuni: merchant id is required")
	ErrHashMismatch      = errors.New("payuni: hash mismatch")
	ErrMalformedPayload  = errors.New("payuni: malformed payload")
)

// Config holds the merchant credentials issued by the gateway.
type Config struct {
	MerchantID string
	HashKey    string
	HashIV     string
	GatewayURL string
	// Now overrides the clock used for envelope timestamps.
	Now func() time.Time
}

// GatewayURLFor maps an environment name to the hosted payment page.
func GatewayURLFor(env string) string {
	if strings.EqualFold(env, "production") {
		return ProductionURL
	}
	return SandboxURL
}

// Client encodes and decodes envelopes for one merchant. It is safe for concurrent use.
type Client struct {
	merchantID string
	key        string
	iv         string
	gatewayURL string
	aead       cipher.AEAD
	now        func() time.Time
}

// New validates the credentials and prepares the cipher. Credential errors are configuration
// errors and should stop the process.
func New(cfg Config) (*Client, error) {
	if cfg.MerchantID == "" {
		return nil, ErrMissingMerchantID
	}
	if len(cfg.HashKey) != KeySize {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidKey, len(cfg.HashKey))
	}
	if len(cfg.HashIV) != IVSize {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidIV, len(cfg.HashIV))
	}

	block, err := aes.NewCipher([]byte(cfg.HashKey))
	if err != nil {
		return nil, fmt.Errorf("payuni: init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("payuni: init gcm: %w", err)
	}

	gatewayURL := cfg.GatewayURL
	if gatewayURL == "" {
		gatewayURL = SandboxURL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		merchantID: cfg.MerchantID,
		key:        cfg.HashKey,
		iv:         cfg.HashIV,
		gatewayURL: gatewayURL,
		aead:       aead,
		now:        now,
	}, nil
}

// MerchantID returns the configured MerID.
func (c *Client) MerchantID() string { return c.merchantID }

// GatewayURL returns the payment page the checkout form posts to.
func (c *Client) GatewayURL() string { return c.gatewayURL }

// Encrypt serializes values in canonical query encoding (sorted keys) and returns
// hex(base64(ciphertext) + ":::" + base64(tag)).
func (c *Client) Encrypt(values url.Values) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("%w: empty field map", ErrMalformedPayload)
	}
	sealed := c.aead.Seal(nil, []byte(c.iv), []byte(values.Encode()), nil)
	n := len(sealed) - c.aead.Overhead()
	combined := base64.StdEncoding.EncodeToString(sealed[:n]) + separator + base64.StdEncoding.EncodeToString(sealed[n:])
	return hex.EncodeToString([]byte(combined)), nil
}

// Decrypt reverses Encrypt. Any structural or authentication failure is ErrMalformedPayload.
func (c *Client) Decrypt(encryptInfo string) (url.Values, error) {
	raw, err := hex.DecodeString(encryptInfo)
	if err != nil {
		return nil, fmt.Errorf("%w: hex: %v", ErrMalformedPayload, err)
	}
	ctPart, tagPart, ok := strings.Cut(string(raw), separator)
	if !ok {
		return nil, fmt.Errorf("%w: missing tag separator", ErrMalformedPayload)
	}
	ct, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedPayload, err)
	}
	tag, err := base64.StdEncoding.DecodeString(tagPart)
	if err != nil {
		return nil, fmt.Errorf("%w: tag: %v", ErrMalformedPayload, err)
	}
	if len(tag) != c.aead.Overhead() {
		return nil, fmt.Errorf("%w: tag is %d bytes", ErrMalformedPayload, len(tag))
	}

	plain, err := c.aead.Open(nil, []byte(c.iv), append(ct, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %v", ErrMalformedPayload, err)
	}
	values, err := url.ParseQuery(string(plain))
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrMalformedPayload, err)
	}
	return values, nil
}

// Hash returns UPPER(hex(sha256(key + encryptInfo + iv))).
func (c *Client) Hash(encryptInfo string) string {
	sum := sha256.Sum256([]byte(c.key + encryptInfo + c.iv))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify checks hashInfo against the hash of encryptInfo in constant time.
func (c *Client) Verify(encryptInfo, hashInfo string) error {
	want := c.Hash(encryptInfo)
	got := strings.ToUpper(strings.TrimSpace(hashInfo))
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrHashMismatch
	}
	return nil
}
