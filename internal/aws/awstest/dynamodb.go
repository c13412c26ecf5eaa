// Package awstest provides in-memory fakes of the AWS client interfaces for unit tests.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB is a small in-memory DynamoDB supporting the expressions the stores issue:
// attribute_exists / attribute_not_exists / equality conditions joined by AND, and
// plain "SET a = :a, #b = :b" update expressions.
type DynamoDB struct {
	mu     sync.Mutex
	keys   map[string]string
	tables map[string]map[string]map[string]types.AttributeValue

	// Err, when set, is returned by every call.
	Err error

	PutCalls    int
	GetCalls    int
	UpdateCalls int
	ScanCalls   int
}

// NewDynamoDB returns an empty fake without tables.
func NewDynamoDB() *DynamoDB {
	return &DynamoDB{
		keys:   map[string]string{},
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

// CreateTable registers a table whose partition key is the string attribute pk.
func (m *DynamoDB) CreateTable(name, pk string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[name] = pk
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = map[string]map[string]types.AttributeValue{}
	}
}

// Seed stores item as-is, bypassing conditions.
func (m *DynamoDB) Seed(table string, item map[string]types.AttributeValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.keyValue(table, item)
	if err != nil {
		panic(err)
	}
	m.tables[table][pk] = copyItem(item)
}

// Item returns a copy of the stored item, or nil.
func (m *DynamoDB) Item(table, key string) map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.tables[table][key]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Len returns the number of items in table.
func (m *DynamoDB) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func (m *DynamoDB) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	table := deref(params.TableName)
	pk, err := m.keyValue(table, params.Item)
	if err != nil {
		return nil, err
	}
	existing := m.tables[table][pk]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: params.ConditionExpression}
		}
	}
	m.tables[table][pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *DynamoDB) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	table := deref(params.TableName)
	pk, err := m.keyValue(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *DynamoDB) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	table := deref(params.TableName)
	pk, err := m.keyValue(table, params.Key)
	if err != nil {
		return nil, err
	}
	existing := m.tables[table][pk]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: params.ConditionExpression}
		}
	}

	item := copyItem(existing)
	if item == nil {
		item = copyItem(params.Key)
	}
	if params.UpdateExpression != nil {
		if err := applySet(*params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item); err != nil {
			return nil, err
		}
	}
	m.tables[table][pk] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (m *DynamoDB) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	table := deref(params.TableName)
	rows, ok := m.tables[table]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: &table}
	}
	items := make([]map[string]types.AttributeValue, 0, len(rows))
	for _, it := range rows {
		items = append(items, copyItem(it))
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

func (m *DynamoDB) keyValue(table string, item map[string]types.AttributeValue) (string, error) {
	pkName, ok := m.keys[table]
	if !ok {
		return "", &types.ResourceNotFoundException{Message: &table}
	}
	s, ok := item[pkName].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("awstest: item in %s has no string key %q", table, pkName)
	}
	return s.Value, nil
}

func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
			name := resolveName(clause[len("attribute_not_exists("):len(clause)-1], names)
			if _, ok := item[name]; ok {
				return false, nil
			}
		case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
			name := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
			if _, ok := item[name]; !ok {
				return false, nil
			}
		default:
			lhs, rhs, ok := strings.Cut(clause, "=")
			if !ok {
				return false, fmt.Errorf("awstest: unsupported condition %q", clause)
			}
			want, ok := values[strings.TrimSpace(rhs)]
			if !ok {
				return false, fmt.Errorf("awstest: missing value %s", strings.TrimSpace(rhs))
			}
			if !avEqual(item[resolveName(lhs, names)], want) {
				return false, nil
			}
		}
	}
	return true, nil
}

func applySet(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("awstest: unsupported update %q", expr)
	}
	for _, assign := range strings.Split(expr[len("SET "):], ",") {
		lhs, rhs, ok := strings.Cut(assign, "=")
		if !ok {
			return fmt.Errorf("awstest: unsupported assignment %q", assign)
		}
		v, ok := values[strings.TrimSpace(rhs)]
		if !ok {
			return fmt.Errorf("awstest: missing value %s", strings.TrimSpace(rhs))
		}
		item[resolveName(lhs, names)] = v
	}
	return nil
}

func resolveName(s string, names map[string]string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		if n, ok := names[s]; ok {
			return n
		}
	}
	return s
}

func avEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	default:
		return false
	}
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ErrInjected is a convenience error for tests that set Err.
var ErrInjected = errors.New("awstest: injected failure")
