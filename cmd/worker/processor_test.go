package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/doris-payments/internal/aws"
	"github.com/imrishuroy/doris-payments/internal/aws/awstest"
	"github.com/imrishuroy/doris-payments/internal/enrollments"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func change(name, oldStatus, newStatus string, slugs ...string) events.DynamoDBEventRecord {
	rec := events.DynamoDBEventRecord{
		EventID:   "evt-" + newStatus,
		EventName: name,
		Change: events.DynamoDBStreamRecord{
			NewImage: map[string]events.DynamoDBAttributeValue{
				"order_no": events.NewStringAttribute("DORIS1700000000"),
				"status":   events.NewStringAttribute(newStatus),
				"email":    events.NewStringAttribute("Student@Example.com"),
			},
		},
	}
	if oldStatus != "" {
		rec.Change.OldImage = map[string]events.DynamoDBAttributeValue{
			"order_no": events.NewStringAttribute("DORIS1700000000"),
			"status":   events.NewStringAttribute(oldStatus),
		}
	}
	if len(slugs) > 0 {
		rec.Change.NewImage["course_slugs"] = events.NewStringSetAttribute(slugs)
	}
	return rec
}

func newTestProcessor(t *testing.T) (*Processor, *awstest.DynamoDB, *awstest.SQS) {
	t.Helper()
	db := awstest.NewDynamoDB()
	db.CreateTable("enrollments", "enrollment_id")
	queue := &awstest.SQS{}
	p := NewProcessor(
		enrollments.NewStore(db, "enrollments"),
		aws.NewPublisher(queue, "https://sqs.local/enrollments"),
		nil,
		discardLogger(),
	)
	return p, db, queue
}

func TestHandle_GrantsOnPaidTransition(t *testing.T) {
	p, db, queue := newTestProcessor(t)

	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		change("MODIFY", "pending", "paid", "go-101", "go-201"),
	}}
	if err := p.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if db.Len("enrollments") != 2 {
		t.Fatalf("expected 2 enrollments, got %d", db.Len("enrollments"))
	}
	if db.Item("enrollments", "student@example.com#go-101") == nil {
		t.Fatal("expected go-101 enrollment keyed by lower-cased email")
	}
	if queue.Sent() != 2 {
		t.Fatalf("expected 2 messages, got %d", queue.Sent())
	}

	var msg EnrollmentGranted
	if err := json.Unmarshal([]byte(*queue.Messages[0].MessageBody), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Type != "enrollment.granted" || msg.OrderNo != "DORIS1700000000" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if got := *queue.Messages[0].MessageAttributes["event_type"].StringValue; got != "enrollment.granted" {
		t.Fatalf("event_type attribute = %q", got)
	}
}

func TestHandle_IgnoresOtherChanges(t *testing.T) {
	p, db, queue := newTestProcessor(t)

	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		change("INSERT", "", "pending", "go-101"),
		change("MODIFY", "paid", "paid", "go-101"),
		change("MODIFY", "pending", "pending", "go-101"),
		change("REMOVE", "paid", "paid", "go-101"),
	}}
	if err := p.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.Len("enrollments") != 0 || queue.Sent() != 0 {
		t.Fatalf("expected no side effects, got %d enrollments %d messages", db.Len("enrollments"), queue.Sent())
	}
}

func TestHandle_RetryIsIdempotent(t *testing.T) {
	p, db, queue := newTestProcessor(t)
	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{change("MODIFY", "pending", "paid", "go-101")}}

	queue.Err = errors.New("sqs down")
	if err := p.Handle(context.Background(), ev); err == nil {
		t.Fatal("expected publish failure to fail the batch")
	}
	if db.Len("enrollments") != 1 {
		t.Fatalf("grant should be stored before publish, got %d", db.Len("enrollments"))
	}

	queue.Err = nil
	if err := p.Handle(context.Background(), ev); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if db.Len("enrollments") != 1 {
		t.Fatalf("retry must not duplicate grants, got %d", db.Len("enrollments"))
	}
	if queue.Sent() != 1 {
		t.Fatalf("retry must deliver the message, got %d", queue.Sent())
	}
}

func TestHandle_StoreErrorFailsBatch(t *testing.T) {
	p, db, _ := newTestProcessor(t)
	db.Err = awstest.ErrInjected

	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{change("MODIFY", "pending", "paid", "go-101")}}
	if err := p.Handle(context.Background(), ev); !errors.Is(err, awstest.ErrInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestHandle_NoQueueConfigured(t *testing.T) {
	db := awstest.NewDynamoDB()
	db.CreateTable("enrollments", "enrollment_id")
	p := NewProcessor(enrollments.NewStore(db, "enrollments"), aws.NewPublisher(nil, ""), nil, discardLogger())

	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{change("MODIFY", "pending", "paid", "go-101")}}
	if err := p.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.Len("enrollments") != 1 {
		t.Fatalf("expected 1 enrollment, got %d", db.Len("enrollments"))
	}
}

func TestLocalEvent_IsPaidTransition(t *testing.T) {
	tr, ok := transition(localEvent().Records[0])
	if !ok || tr.OrderNo == "" || len(tr.CourseSlugs) != 1 {
		t.Fatalf("unexpected transition %+v ok=%v", tr, ok)
	}
}
