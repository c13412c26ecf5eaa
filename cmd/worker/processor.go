package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/doris-payments/internal/aws"
	"github.com/imrishuroy/doris-payments/internal/enrollments"
	"github.com/imrishuroy/doris-payments/internal/metrics"
	"github.com/imrishuroy/doris-payments/internal/orders"
)

// Granter records course entitlements.
type Granter interface {
	Grant(ctx context.Context, email, slug, orderNo string) (bool, error)
}

// Processor grants courses for orders that the stream shows moving pending -> paid.
type Processor struct {
	grants    Granter
	publisher *aws.Publisher
	metrics   metrics.Publisher
	logger    *slog.Logger
}

// NewProcessor creates a worker processor. publisher may be nil or disabled.
func NewProcessor(grants Granter, publisher *aws.Publisher, m metrics.Publisher, logger *slog.Logger) *Processor {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Processor{grants: grants, publisher: publisher, metrics: m, logger: logger}
}

// Handle processes a stream batch in order. Any error fails the batch so the stream retries it;
// grants already made are skipped on the retry.
func (p *Processor) Handle(ctx context.Context, ev events.DynamoDBEvent) error {
	for _, rec := range ev.Records {
		t, ok := transition(rec)
		if !ok {
			continue
		}
		if err := p.grant(ctx, t); err != nil {
			p.logger.ErrorContext(ctx, "grant_failed", "order_no", t.OrderNo, "event_id", rec.EventID, "error", err)
			return err
		}
	}
	return nil
}

func (p *Processor) grant(ctx context.Context, t paidTransition) error {
	if t.Email == "" || len(t.CourseSlugs) == 0 {
		p.logger.WarnContext(ctx, "paid_order_without_courses", "order_no", t.OrderNo)
		return nil
	}
	for _, slug := range t.CourseSlugs {
		created, err := p.grants.Grant(ctx, t.Email, slug, t.OrderNo)
		if err != nil {
			return fmt.Errorf("grant %s for order %s: %w", slug, t.OrderNo, err)
		}
		if created {
			p.logger.InfoContext(ctx, "enrollment_granted", "order_no", t.OrderNo, "course_slug", slug)
			p.metrics.Count(ctx, "EnrollmentGranted", nil)
		} else {
			p.logger.InfoContext(ctx, "enrollment_exists", "order_no", t.OrderNo, "course_slug", slug)
		}

		// Existing grants are announced again so a batch retried after a failed publish
		// still delivers the message; consumers dedupe on enrollment_id.
		if !p.publisher.Enabled() {
			continue
		}
		msg := EnrollmentGranted{
			Type:         eventEnrollmentGranted,
			EnrollmentID: enrollments.ID(t.Email, slug),
			Email:        t.Email,
			CourseSlug:   slug,
			OrderNo:      t.OrderNo,
		}
		if err := p.publisher.Publish(ctx, msg, map[string]string{"event_type": eventEnrollmentGranted, "order_no": t.OrderNo}); err != nil {
			return fmt.Errorf("publish grant %s for order %s: %w", slug, t.OrderNo, err)
		}
	}
	return nil
}

// transition reports whether rec is a MODIFY that moved an order from pending to paid.
func transition(rec events.DynamoDBEventRecord) (paidTransition, bool) {
	if rec.EventName != string(events.DynamoDBOperationTypeModify) {
		return paidTransition{}, false
	}
	oldImage, newImage := rec.Change.OldImage, rec.Change.NewImage
	if stringAttr(oldImage, "status") != orders.StatusPending || stringAttr(newImage, "status") != orders.StatusPaid {
		return paidTransition{}, false
	}

	t := paidTransition{
		OrderNo: stringAttr(newImage, "order_no"),
		Email:   stringAttr(newImage, "email"),
	}
	if v, ok := newImage["course_slugs"]; ok {
		switch v.DataType() {
		case events.DataTypeStringSet:
			t.CourseSlugs = v.StringSet()
		case events.DataTypeList:
			for _, item := range v.List() {
				if item.DataType() == events.DataTypeString {
					t.CourseSlugs = append(t.CourseSlugs, item.String())
				}
			}
		}
	}
	return t, true
}

func stringAttr(image map[string]events.DynamoDBAttributeValue, name string) string {
	v, ok := image[name]
	if !ok || v.DataType() != events.DataTypeString {
		return ""
	}
	return v.String()
}
