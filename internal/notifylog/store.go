package notifylog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/doris-payments/internal/aws"
)

// Store keeps an audit trail of gateway notifications in DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long entries are retained
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: retention of entries (e.g., 90*24*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Record stores e with status received if its NotificationID is new.
// Returns (true, nil) for a first delivery and (false, nil) for a redelivery.
func (s *Store) Record(ctx context.Context, e Entry) (bool, error) {
	now := s.nowFunc().UTC()
	e.Status = StatusReceived
	e.CreatedAt = now
	e.UpdatedAt = now
	e.ExpiresAt = now.Add(s.ttlWindow).Unix()

	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return false, fmt.Errorf("marshal entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(notification_id)"),
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves an entry. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       entryKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var e Entry
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &e, nil
}

// ErrUnknownEntry is returned when marking an entry that was never recorded.
var ErrUnknownEntry = errors.New("notification entry not found")

// MarkHandled records the reconciliation outcome. The first outcome is final:
// a redelivery of an already handled envelope leaves the entry untouched.
func (s *Store) MarkHandled(ctx context.Context, id, outcome string) error {
	return s.update(ctx, id, StatusHandled, "outcome", outcome, false)
}

// MarkApplied records the outcome of the delivery that changed state. It replaces
// whatever a concurrent redelivery of the same envelope recorded first.
func (s *Store) MarkApplied(ctx context.Context, id, outcome string) error {
	return s.update(ctx, id, StatusHandled, "outcome", outcome, true)
}

// MarkFailed records why handling failed; the gateway will redeliver.
// It is a no-op once the entry has an outcome.
func (s *Store) MarkFailed(ctx context.Context, id, note string) error {
	return s.update(ctx, id, StatusHandleFailed, "note", note, false)
}

func (s *Store) update(ctx context.Context, id, status, field, value string, overwrite bool) error {
	now := s.nowFunc().UTC()
	cond := "attribute_exists(notification_id) AND attribute_not_exists(outcome)"
	if overwrite {
		cond = "attribute_exists(notification_id)"
	}
	input := &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              entryKey(id),
		UpdateExpression: awsString("SET #s = :st, #f = :v, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
			"#f": field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: status},
			":v":  &types.AttributeValueMemberS{Value: value},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ConditionExpression: awsString(cond),
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err == nil {
		return nil
	}
	var sc smithy.APIError
	if !errors.As(err, &sc) || sc.ErrorCode() != "ConditionalCheckFailedException" {
		return fmt.Errorf("update item (mark %s): %w", status, err)
	}

	// either missing or already handled
	e, gerr := s.Get(ctx, id)
	if gerr != nil {
		return gerr
	}
	if e == nil {
		return fmt.Errorf("mark %s %s: %w", status, id, ErrUnknownEntry)
	}
	return nil
}

func entryKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"notification_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Helper
func awsString(s string) *string { return &s }
