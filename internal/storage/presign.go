package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/imrishuroy/doris-payments/internal/aws"
)

// DefaultExpiry is how long a presigned upload URL stays valid.
const DefaultExpiry = 15 * time.Minute

var ErrUnsupportedType = errors.New("unsupported upload type")

var allowedTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// PresignResult tells the browser where to PUT the file and where it will be served.
type PresignResult struct {
	Key       string            `json:"key"`
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	PublicURL string            `json:"public_url"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type Presigner struct {
	Client        aws.S3PresignAPI
	Bucket        string
	Prefix        string
	PublicBaseURL string
	Expiry        time.Duration
	nowFunc       func() time.Time
}

func NewPresigner(client aws.S3PresignAPI, bucket, prefix, publicBaseURL string) *Presigner {
	return &Presigner{
		Client:        client,
		Bucket:        bucket,
		Prefix:        prefix,
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		Expiry:        DefaultExpiry,
		nowFunc:       time.Now,
	}
}

// PresignPut returns a direct-to-bucket upload URL for an image file.
func (p *Presigner) PresignPut(ctx context.Context, filename, contentType string) (PresignResult, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedTypes[ext]
	if !ok || !strings.EqualFold(contentType, want) {
		return PresignResult{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, ext, contentType)
	}

	key := uuid.NewString() + ext
	if p.Prefix != "" {
		key = strings.Trim(p.Prefix, "/") + "/" + key
	}

	req, err := p.Client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      &p.Bucket,
		Key:         &key,
		ContentType: &want,
	}, s3.WithPresignExpires(p.Expiry))
	if err != nil {
		return PresignResult{}, fmt.Errorf("presign put: %w", err)
	}

	headers := map[string]string{}
	for k, v := range req.SignedHeader {
		if len(v) > 0 && !strings.EqualFold(k, "host") {
			headers[k] = v[0]
		}
	}

	return PresignResult{
		Key:       key,
		UploadURL: req.URL,
		Method:    req.Method,
		Headers:   headers,
		PublicURL: p.PublicBaseURL + "/" + key,
		ExpiresAt: p.nowFunc().Add(p.Expiry).UTC(),
	}, nil
}
