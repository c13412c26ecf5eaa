// Package enrollments grants course access for paid orders.
package enrollments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/doris-payments/internal/aws"
)

// Enrollment gives Email access to CourseSlug, granted by OrderNo.
type Enrollment struct {
	EnrollmentID string    `dynamodbav:"enrollment_id"` // PK: email#slug
	Email        string    `dynamodbav:"email"`
	CourseSlug   string    `dynamodbav:"course_slug"`
	OrderNo      string    `dynamodbav:"order_no"`
	GrantedAt    time.Time `dynamodbav:"granted_at"`
}

// ID is the enrollment primary key for email and slug.
func ID(email, slug string) string {
	return strings.ToLower(email) + "#" + slug
}

type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Grant creates the enrollment unless it already exists.
// It returns created=false, with a nil error, when the learner already had access.
func (s *Store) Grant(ctx context.Context, email, slug, orderNo string) (bool, error) {
	e := Enrollment{
		EnrollmentID: ID(email, slug),
		Email:        email,
		CourseSlug:   slug,
		OrderNo:      orderNo,
		GrantedAt:    s.nowFunc().UTC(),
	}
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return false, fmt.Errorf("marshal enrollment: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(enrollment_id)"),
	})
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

func awsString(s string) *string { return &s }
