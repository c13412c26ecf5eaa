package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/doris-payments/internal/aws"
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

var _ Repository = (*Store)(nil)

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create puts the order guarded by attribute_not_exists(order_no).
func (s *Store) Create(ctx context.Context, o Order) error {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_no)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrDuplicateOrderNo
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_no. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderNo string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderNo),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// MarkPaid is the reconciliation write: it only applies while status is still pending,
// so redelivered notifications fall through the condition and change nothing.
func (s *Store) MarkPaid(ctx context.Context, orderNo, gatewayTradeNo string) (bool, error) {
	now := s.nowFunc().UTC().Format(time.RFC3339Nano)
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderNo),
		UpdateExpression:         awsString("SET #s = :new, gateway_trade_no = :tn, paid_at = :pa, updated_at = :ua"),
		ConditionExpression:      awsString("attribute_exists(order_no) AND #s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: StatusPaid},
			":expected": &types.AttributeValueMemberS{Value: StatusPending},
			":tn":       &types.AttributeValueMemberS{Value: gatewayTradeNo},
			":pa":       &types.AttributeValueMemberS{Value: now},
			":ua":       &types.AttributeValueMemberS{Value: now},
		},
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("update item (mark paid): %w", err)
	}
	return true, nil
}

func orderKey(orderNo string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_no": &types.AttributeValueMemberS{Value: orderNo},
	}
}

func isConditionalFailure(err error) bool {
	var sc *types.ConditionalCheckFailedException
	return errors.As(err, &sc)
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
