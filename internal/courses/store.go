package courses

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/doris-payments/internal/aws"
)

// ErrNotFound is returned when a slug is unknown or the course is unpublished.
var ErrNotFound = errors.New("course not found")

// Course is a purchasable catalog entry; Price is in whole TWD.
type Course struct {
	Slug      string `dynamodbav:"slug" json:"slug"` // PK
	Title     string `dynamodbav:"title" json:"title"`
	Price     int64  `dynamodbav:"price" json:"price"`
	Published bool   `dynamodbav:"published" json:"-"`
}

// Store reads the courses table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get returns a published course by slug.
func (s *Store) Get(ctx context.Context, slug string) (*Course, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"slug": &types.AttributeValueMemberS{Value: slug},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%s: %w", slug, ErrNotFound)
	}
	var c Course
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal course: %w", err)
	}
	if !c.Published {
		return nil, fmt.Errorf("%s: %w", slug, ErrNotFound)
	}
	return &c, nil
}

// List scans every page of the table and returns published courses sorted by title.
func (s *Store) List(ctx context.Context) ([]Course, error) {
	var (
		out     []Course
		startAt map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startAt,
		})
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var batch []Course
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal courses: %w", err)
		}
		for _, c := range batch {
			if c.Published {
				out = append(out, c)
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startAt = page.LastEvaluatedKey
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}
