package awstest

import (
	"context"
	"net/http"
	"sync"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS records every SendMessage call.
type SQS struct {
	mu       sync.Mutex
	Err      error
	Messages []*sqs.SendMessageInput
}

func (m *SQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Messages = append(m.Messages, params)
	id := "msg-1"
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// Sent returns the number of messages recorded.
func (m *SQS) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// CloudWatch records every PutMetricData call.
type CloudWatch struct {
	mu     sync.Mutex
	Err    error
	Inputs []*cloudwatch.PutMetricDataInput
}

func (m *CloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Inputs = append(m.Inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// S3Presign returns deterministic fake presigned URLs under BaseURL.
type S3Presign struct {
	BaseURL string
	Err     error
}

func (m *S3Presign) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	base := m.BaseURL
	if base == "" {
		base = "https://uploads.s3.test"
	}
	return &v4.PresignedHTTPRequest{
		URL:    base + "/" + *params.Key + "?X-Amz-Signature=fake",
		Method: http.MethodPut,
		SignedHeader: http.Header{
			"Content-Type": []string{*params.ContentType},
		},
	}, nil
}
