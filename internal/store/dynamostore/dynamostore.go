// Package dynamostore keeps tasks in a DynamoDB table.
//
// Table schema:
//   - Partition key: user_id (string)
//   - Sort key: id (string)
//   - Local secondary index "order_index-index": user_id, order_index (number),
//     projecting all attributes
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name ordo-tasks \
//	  --attribute-definitions AttributeName=user_id,AttributeType=S \
//	    AttributeName=id,AttributeType=S AttributeName=order_index,AttributeType=N \
//	  --key-schema AttributeName=user_id,KeyType=HASH AttributeName=id,KeyType=RANGE \
//	  --local-secondary-indexes 'IndexName=order_index-index,KeySchema=[{AttributeName=user_id,KeyType=HASH},{AttributeName=order_index,KeyType=RANGE}],Projection={ProjectionType=ALL}' \
//	  --billing-mode PAY_PER_REQUEST
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/tasks"
	"github.com/nibzard/ordo/internal/todo"
)

// OrderIndexName is the local secondary index sorted by order_index.
const OrderIndexName = "order_index-index"

// maxTransactItems is the DynamoDB limit of items per transaction.
const maxTransactItems = 100

// DDBClient is the subset of the DynamoDB API the store uses.
type DDBClient interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store is a tasks.Repository over a DynamoDB table.
type Store struct {
	client  DDBClient
	table   string
	writes  *rate.Limiter
	logger  *log.Logger
	pageLen int32
}

var (
	_ tasks.Repository       = (*Store)(nil)
	_ orderindex.BatchWriter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWriteRate caps item writes per second. Zero or less means unlimited.
func WithWriteRate(perSecond float64) Option {
	return func(s *Store) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < maxTransactItems {
				burst = maxTransactItems
			}
			s.writes = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithPageSize sets how many items each query page asks for.
func WithPageSize(n int32) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageLen = n
		}
	}
}

// New returns a Store over an existing client.
func New(client DDBClient, table string, opts ...Option) *Store {
	s := &Store{
		client:  client,
		table:   table,
		writes:  rate.NewLimiter(rate.Inf, 0),
		logger:  log.New(io.Discard),
		pageLen: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config selects the table and how to reach it.
type Config struct {
	Table    string
	Region   string
	Endpoint string
}

// Open loads the default AWS configuration and returns a Store for cfg.
// Endpoint overrides the service endpoint, for DynamoDB Local.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Table == "" {
		return nil, errors.New("dynamodb table name is empty")
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, cfg.Table, opts...), nil
}

func (s *Store) waitWrites(ctx context.Context, n int) error {
	if err := s.writes.WaitN(ctx, n); err != nil {
		return fmt.Errorf("write throttle: %w", err)
	}
	return nil
}

func keyOf(user, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: user},
		"id":      &types.AttributeValueMemberS{Value: id},
	}
}

func notFound(id string) error {
	return fmt.Errorf("task %q: %w", id, todo.ErrNotFound)
}

func isConditionFailed(err error) bool {
	var cond *types.ConditionalCheckFailedException
	if errors.As(err, &cond) {
		return true
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, r := range canceled.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// edgeKey reads the first row of the order index in one direction.
func (s *Store) edgeKey(ctx context.Context, user string, forward bool) (orderindex.Key, bool, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(OrderIndexName),
		KeyConditionExpression: aws.String("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: user},
		},
		ProjectionExpression: aws.String("order_index"),
		ScanIndexForward:     aws.Bool(forward),
		ConsistentRead:       aws.Bool(true),
		Limit:                aws.Int32(1),
	})
	if err != nil {
		return 0, false, fmt.Errorf("query edge key: %w", err)
	}
	if len(out.Items) == 0 {
		return 0, false, nil
	}
	n, err := numberAttr(out.Items[0], "order_index")
	if err != nil {
		return 0, false, err
	}
	return orderindex.Key(n), true, nil
}

// MaxKey implements orderindex.Store.
func (s *Store) MaxKey(ctx context.Context, user string) (orderindex.Key, bool, error) {
	return s.edgeKey(ctx, user, false)
}

// MinKey implements orderindex.Store.
func (s *Store) MinKey(ctx context.Context, user string) (orderindex.Key, bool, error) {
	return s.edgeKey(ctx, user, true)
}

// Window implements orderindex.Store. The index orders by key only, so rows
// sharing the key at the limit boundary are all read and sorted locally.
func (s *Store) Window(ctx context.Context, user string, q orderindex.WindowQuery) ([]orderindex.Entry, error) {
	cond := "user_id = :u"
	values := map[string]types.AttributeValue{
		":u": &types.AttributeValueMemberS{Value: user},
	}
	switch {
	case q.Lower != nil && q.Upper != nil:
		cond += " AND order_index BETWEEN :lo AND :hi"
	case q.Lower != nil:
		cond += " AND order_index >= :lo"
	case q.Upper != nil:
		cond += " AND order_index <= :hi"
	}
	if q.Lower != nil {
		values[":lo"] = numberValue(int64(*q.Lower))
	}
	if q.Upper != nil {
		values[":hi"] = numberValue(int64(*q.Upper))
	}
	if q.Lower != nil && q.Upper != nil && *q.Lower > *q.Upper {
		return []orderindex.Entry{}, nil
	}

	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(OrderIndexName),
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeValues: values,
		ProjectionExpression:      aws.String("id, order_index, created_at"),
		ScanIndexForward:          aws.Bool(q.Direction == orderindex.Ascending),
		ConsistentRead:            aws.Bool(true),
		Limit:                     aws.Int32(s.pageLen),
	}

	rows := []orderindex.Entry{}
	for {
		out, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query window: %w", err)
		}
		for _, item := range out.Items {
			e, err := entryOf(item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, e)
		}
		if len(out.LastEvaluatedKey) == 0 || windowFull(rows, q.Limit) {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if q.Direction == orderindex.Descending {
			return orderindex.Less(rows[j], rows[i])
		}
		return orderindex.Less(rows[i], rows[j])
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// windowFull reports whether rows already hold limit rows plus one row with
// a different key than the last kept one.
func windowFull(rows []orderindex.Entry, limit int) bool {
	return limit > 0 && len(rows) > limit && rows[len(rows)-1].Key != rows[limit-1].Key
}

// UpdateKey implements orderindex.Store.
func (s *Store) UpdateKey(ctx context.Context, user, id string, key orderindex.Key) error {
	if err := s.waitWrites(ctx, 1); err != nil {
		return err
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 keyOf(user, id),
		UpdateExpression:    aws.String("SET order_index = :k"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": numberValue(int64(key)),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return notFound(id)
		}
		return fmt.Errorf("update key of %s: %w", id, err)
	}
	return nil
}

// UpdateKeys implements orderindex.BatchWriter. Each transaction holds at
// most 100 items and transactions run in the order given, so a failure
// leaves a prefix of the assignments written.
func (s *Store) UpdateKeys(ctx context.Context, user string, as []orderindex.Assignment) error {
	for start := 0; start < len(as); start += maxTransactItems {
		end := min(start+maxTransactItems, len(as))
		chunk := as[start:end]
		if err := s.waitWrites(ctx, len(chunk)); err != nil {
			return err
		}

		items := make([]types.TransactWriteItem, len(chunk))
		for i, a := range chunk {
			items[i] = types.TransactWriteItem{Update: &types.Update{
				TableName:           aws.String(s.table),
				Key:                 keyOf(user, a.ID),
				UpdateExpression:    aws.String("SET order_index = :k"),
				ConditionExpression: aws.String("attribute_exists(id)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":k": numberValue(int64(a.Key)),
				},
			}}
		}
		_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
		if err != nil {
			if isConditionFailed(err) {
				return fmt.Errorf("update keys %d-%d: %w", start, end-1, todo.ErrNotFound)
			}
			return fmt.Errorf("update keys %d-%d: %w", start, end-1, err)
		}
		s.logger.Debug("keys written", "user", user, "items", len(chunk))
	}
	return nil
}

// Insert implements tasks.Repository.
func (s *Store) Insert(ctx context.Context, t todo.Task) error {
	if err := s.waitWrites(ctx, 1); err != nil {
		return err
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                itemOf(t),
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("task %q already exists", t.ID)
		}
		return fmt.Errorf("put task %s: %w", t.ID, err)
	}
	return nil
}

// Get implements tasks.Repository.
func (s *Store) Get(ctx context.Context, user, id string) (todo.Task, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyOf(user, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return todo.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return todo.Task{}, notFound(id)
	}
	return taskOf(out.Item)
}

// List implements tasks.Repository.
func (s *Store) List(ctx context.Context, user string) ([]todo.Task, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(OrderIndexName),
		KeyConditionExpression: aws.String("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: user},
		},
		ConsistentRead: aws.Bool(true),
		Limit:          aws.Int32(s.pageLen),
	}
	out := []todo.Task{}
	for {
		page, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query tasks: %w", err)
		}
		for _, item := range page.Items {
			t, err := taskOf(item)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	todo.SortByOrder(out)
	return out, nil
}

// Replace implements tasks.Repository.
func (s *Store) Replace(ctx context.Context, t todo.Task) error {
	if err := s.waitWrites(ctx, 1); err != nil {
		return err
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                itemOf(t),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return notFound(t.ID)
		}
		return fmt.Errorf("put task %s: %w", t.ID, err)
	}
	return nil
}

// Delete implements tasks.Repository.
func (s *Store) Delete(ctx context.Context, user, id string) error {
	if err := s.waitWrites(ctx, 1); err != nil {
		return err
	}
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 keyOf(user, id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return notFound(id)
		}
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// Users implements tasks.Repository. It scans the whole table.
func (s *Store) Users(ctx context.Context) ([]tasks.UserStats, error) {
	in := &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ProjectionExpression: aws.String("user_id, completed"),
		Limit:                aws.Int32(s.pageLen),
	}
	byUser := make(map[string]*tasks.UserStats)
	for {
		page, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan tasks: %w", err)
		}
		for _, item := range page.Items {
			user, err := stringAttr(item, "user_id")
			if err != nil {
				return nil, err
			}
			st := byUser[user]
			if st == nil {
				st = &tasks.UserStats{User: user}
				byUser[user] = st
			}
			st.Total++
			if boolAttr(item, "completed") {
				st.Completed++
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}

	out := make([]tasks.UserStats, 0, len(byUser))
	for _, st := range byUser {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}
