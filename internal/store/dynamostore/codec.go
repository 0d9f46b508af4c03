package dynamostore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nibzard/ordo/internal/orderindex"
	"github.com/nibzard/ordo/internal/todo"
)

func numberValue(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func itemOf(t todo.Task) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"user_id":     &types.AttributeValueMemberS{Value: t.UserID},
		"id":          &types.AttributeValueMemberS{Value: t.ID},
		"title":       &types.AttributeValueMemberS{Value: t.Title},
		"completed":   &types.AttributeValueMemberBOOL{Value: t.Completed},
		"order_index": numberValue(t.OrderIndex),
		"priority":    &types.AttributeValueMemberS{Value: string(t.Priority)},
		"status":      &types.AttributeValueMemberS{Value: string(t.Status)},
		"created_at":  &types.AttributeValueMemberS{Value: t.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"updated_at":  &types.AttributeValueMemberS{Value: t.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if t.StartDate != "" {
		item["start_date"] = &types.AttributeValueMemberS{Value: t.StartDate}
	}
	if t.DueDate != "" {
		item["due_date"] = &types.AttributeValueMemberS{Value: t.DueDate}
	}
	return item
}

func taskOf(item map[string]types.AttributeValue) (todo.Task, error) {
	var t todo.Task
	var err error
	if t.UserID, err = stringAttr(item, "user_id"); err != nil {
		return t, err
	}
	if t.ID, err = stringAttr(item, "id"); err != nil {
		return t, err
	}
	if t.Title, err = stringAttr(item, "title"); err != nil {
		return t, err
	}
	if t.OrderIndex, err = numberAttr(item, "order_index"); err != nil {
		return t, err
	}
	if t.CreatedAt, err = timeAttr(item, "created_at"); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = timeAttr(item, "updated_at"); err != nil {
		return t, err
	}
	t.Completed = boolAttr(item, "completed")
	priority, _ := stringAttr(item, "priority")
	if t.Priority, err = todo.ParsePriority(priority); err != nil {
		return t, err
	}
	status, _ := stringAttr(item, "status")
	if t.Status, err = todo.ParseStatus(status); err != nil {
		return t, err
	}
	t.StartDate, _ = stringAttr(item, "start_date")
	t.DueDate, _ = stringAttr(item, "due_date")
	return t, nil
}

func entryOf(item map[string]types.AttributeValue) (orderindex.Entry, error) {
	id, err := stringAttr(item, "id")
	if err != nil {
		return orderindex.Entry{}, err
	}
	key, err := numberAttr(item, "order_index")
	if err != nil {
		return orderindex.Entry{}, err
	}
	created, err := timeAttr(item, "created_at")
	if err != nil {
		return orderindex.Entry{}, err
	}
	return orderindex.Entry{ID: id, Key: orderindex.Key(key), CreatedAt: created}, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %s: missing or not a string", name)
	}
	return v.Value, nil
}

func numberAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %s: missing or not a number", name)
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return n, nil
}

func boolAttr(item map[string]types.AttributeValue, name string) bool {
	v, ok := item[name].(*types.AttributeValueMemberBOOL)
	return ok && v.Value
}

func timeAttr(item map[string]types.AttributeValue, name string) (time.Time, error) {
	s, err := stringAttr(item, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("attribute %s: %w", name, err)
	}
	return t, nil
}
