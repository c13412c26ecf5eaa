// Package metrics publishes payment counters to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/imrishuroy/doris-payments/internal/aws"
)

// Publisher counts events. Implementations never fail the caller.
type Publisher interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

// Nop discards every metric.
type Nop struct{}

func (Nop) Count(context.Context, string, map[string]string) {}

// CloudWatch sends one PutMetricData call per Count.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *slog.Logger
	nowFunc   func() time.Time
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *slog.Logger) *CloudWatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{client: client, namespace: namespace, logger: logger, nowFunc: time.Now}
}

func (c *CloudWatch) Count(ctx context.Context, name string, dims map[string]string) {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dimensions := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		dimensions = append(dimensions, cwtypes.Dimension{Name: str(k), Value: str(dims[k])})
	}

	ts := c.nowFunc()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &c.namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: &name,
			Dimensions: dimensions,
			Timestamp:  &ts,
			Unit:       cwtypes.StandardUnitCount,
			Value:      float(1),
		}},
	})
	if err != nil {
		c.logger.WarnContext(ctx, "metric_publish_failed", "metric", name, "err", err)
	}
}

func str(s string) *string       { return &s }
func float(f float64) *float64 { return &f }
