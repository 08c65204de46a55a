package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/domain/order"
)

// sortTimeFormat is fixed width so sort keys order chronologically as strings.
const sortTimeFormat = "2006-01-02T15:04:05.000000000Z"

// DynamoAPI is the subset of the DynamoDB client the store relies on.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore stores orders and notification events in DynamoDB.
//
// Orders table: partition key id, GSIs store_id-index and customer_id-index
// (sort key created_at). Events table: partition key target (recipient key),
// sort key sk (occurred_at#id), GSI order_id-index.
type DynamoStore struct {
	client      DynamoAPI
	ordersTable string
	eventsTable string
	publisher   Publisher
	logger      *slog.Logger
}

type dynamoOrder struct {
	ID                   string            `dynamodbav:"id"`
	StoreID              string            `dynamodbav:"store_id"`
	CustomerID           string            `dynamodbav:"customer_id"`
	ContactEmail         string            `dynamodbav:"contact_email,omitempty"`
	Status               string            `dynamodbav:"status"`
	Items                []order.OrderItem `dynamodbav:"items"`
	Total                int               `dynamodbav:"total"`
	Notes                string            `dynamodbav:"notes,omitempty"`
	CancelRequestedAt    string            `dynamodbav:"cancel_requested_at,omitempty"`
	CancelReason         string            `dynamodbav:"cancel_reason,omitempty"`
	CancelPreviousStatus string            `dynamodbav:"cancel_previous_status,omitempty"`
	RejectionReason      string            `dynamodbav:"rejection_reason,omitempty"`
	RejectedAt           string            `dynamodbav:"rejected_at,omitempty"`
	CreatedAt            string            `dynamodbav:"created_at"`
	UpdatedAt            string            `dynamodbav:"updated_at"`
	Version              int               `dynamodbav:"version"`
}

type dynamoEvent struct {
	Target         string `dynamodbav:"target"`
	SortKey        string `dynamodbav:"sk"`
	ID             string `dynamodbav:"id"`
	OrderID        string `dynamodbav:"order_id"`
	StoreID        string `dynamodbav:"store_id"`
	TargetRole     string `dynamodbav:"target_role"`
	TargetID       string `dynamodbav:"target_id"`
	PreviousStatus string `dynamodbav:"previous_status,omitempty"`
	NewStatus      string `dynamodbav:"new_status"`
	Reason         string `dynamodbav:"reason,omitempty"`
	OccurredAt     string `dynamodbav:"occurred_at"`
	Seen           bool   `dynamodbav:"seen"`
}

func NewDynamoStore(client DynamoAPI, ordersTable, eventsTable string, publisher Publisher, logger *slog.Logger) *DynamoStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoStore{
		client:      client,
		ordersTable: ordersTable,
		eventsTable: eventsTable,
		publisher:   publisher,
		logger:      logger,
	}
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*order.Order, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.ordersTable),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	if result.Item == nil {
		return nil, order.ErrNotFound
	}

	var item dynamoOrder
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return item.toOrder(), nil
}

// Save writes the order and its events in one TransactWriteItems call. The
// order put is conditioned on the stored version, which is what turns a lost
// race into order.ErrConflict.
func (s *DynamoStore) Save(ctx context.Context, o *order.Order, expectedVersion int, events ...order.Event) error {
	item := fromOrder(o)
	item.Version = expectedVersion + 1

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	put := &types.Put{TableName: aws.String(s.ordersTable), Item: av}
	if expectedVersion == 0 {
		put.ConditionExpression = aws.String("attribute_not_exists(id)")
	} else {
		put.ConditionExpression = aws.String("attribute_exists(id) AND version = :expected")
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedVersion)},
		}
	}

	writes := []types.TransactWriteItem{{Put: put}}
	for _, e := range events {
		eav, err := attributevalue.MarshalMap(fromEvent(e))
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(s.eventsTable),
			Item:                eav,
			ConditionExpression: aws.String("attribute_not_exists(target)"),
		}})
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && len(canceled.CancellationReasons) > 0 &&
			aws.ToString(canceled.CancellationReasons[0].Code) == "ConditionalCheckFailed" {
			if expectedVersion > 0 {
				if _, getErr := s.Get(ctx, o.ID); errors.Is(getErr, order.ErrNotFound) {
					return order.ErrNotFound
				}
			}
			return order.ErrConflict
		}
		return fmt.Errorf("failed to save order %s: %w", o.ID, err)
	}

	o.Version = expectedVersion + 1
	publishAll(ctx, s.publisher, s.logger, events)
	return nil
}

func (s *DynamoStore) ListByStore(ctx context.Context, storeID string, statuses ...order.Status) ([]*order.Order, error) {
	orders, err := s.queryOrders(ctx, "store_id-index", "store_id", storeID)
	if err != nil || len(statuses) == 0 {
		return orders, err
	}

	filtered := orders[:0]
	for _, o := range orders {
		for _, st := range statuses {
			if o.Status == st {
				filtered = append(filtered, o)
				break
			}
		}
	}
	return filtered, nil
}

func (s *DynamoStore) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	return s.queryOrders(ctx, "customer_id-index", "customer_id", customerID)
}

func (s *DynamoStore) queryOrders(ctx context.Context, index, attr, value string) ([]*order.Order, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.ordersTable),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(attr + " = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
		ScanIndexForward: aws.Bool(false), // newest first
	})
	if err != nil {
		return nil, err
	}

	orders := make([]*order.Order, 0, len(items))
	for _, it := range items {
		var do dynamoOrder
		if err := attributevalue.UnmarshalMap(it, &do); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order: %w", err)
		}
		orders = append(orders, do.toOrder())
	}
	return orders, nil
}

func (s *DynamoStore) Append(ctx context.Context, e order.Event) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	av, err := attributevalue.MarshalMap(fromEvent(e))
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.eventsTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(target)"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put event: %w", err)
	}

	publishAll(ctx, s.publisher, s.logger, []order.Event{e})
	return e.ID, nil
}

// PullUnseen claims the recipient's unseen events one conditional update at
// a time. An update that fails its seen = false condition lost the event to
// a concurrent pull and is skipped.
func (s *DynamoStore) PullUnseen(ctx context.Context, r order.Recipient) ([]order.Event, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.eventsTable),
		KeyConditionExpression: aws.String("target = :t"),
		FilterExpression:       aws.String("seen = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":     &types.AttributeValueMemberS{Value: r.Key()},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by occurred_at
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query unseen events: %w", err)
	}

	claimed := make([]order.Event, 0, len(items))
	for _, it := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(it, &de); err != nil {
			return claimed, fmt.Errorf("failed to unmarshal event: %w", err)
		}

		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.eventsTable),
			Key: map[string]types.AttributeValue{
				"target": &types.AttributeValueMemberS{Value: de.Target},
				"sk":     &types.AttributeValueMemberS{Value: de.SortKey},
			},
			UpdateExpression:    aws.String("SET seen = :true, seen_at = :now"),
			ConditionExpression: aws.String("seen = :false"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":true":  &types.AttributeValueMemberBOOL{Value: true},
				":false": &types.AttributeValueMemberBOOL{Value: false},
				":now":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(sortTimeFormat)},
			},
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				continue
			}
			return claimed, fmt.Errorf("failed to mark event %s seen: %w", de.ID, err)
		}

		de.Seen = true
		claimed = append(claimed, de.toEvent())
	}
	return claimed, nil
}

func (s *DynamoStore) History(ctx context.Context, orderID string) ([]order.Event, error) {
	items, err := s.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.eventsTable),
		IndexName:              aws.String("order_id-index"),
		KeyConditionExpression: aws.String("order_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: orderID},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query order history: %w", err)
	}

	events := make([]order.Event, 0, len(items))
	for _, it := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(it, &de); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, de.toEvent())
	}
	sortEvents(events)
	return events, nil
}

// queryAll follows LastEvaluatedKey until the result set is exhausted.
func (s *DynamoStore) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, result.Items...)
		if len(result.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(sortTimeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(sortTimeFormat, s)
	return t
}

func fromOrder(o *order.Order) dynamoOrder {
	item := dynamoOrder{
		ID:           o.ID,
		StoreID:      o.StoreID,
		CustomerID:   o.CustomerID,
		ContactEmail: o.ContactEmail,
		Status:       string(o.Status),
		Items:        o.Items,
		Total:        o.Total,
		Notes:        o.Notes,
		CreatedAt:    formatTime(o.CreatedAt),
		UpdatedAt:    formatTime(o.UpdatedAt),
		Version:      o.Version,
	}
	if cr := o.CancellationRequest; cr != nil {
		item.CancelRequestedAt = formatTime(cr.RequestedAt)
		item.CancelReason = cr.Reason
		item.CancelPreviousStatus = string(cr.PreviousStatus)
	}
	if rj := o.Rejection; rj != nil {
		item.RejectionReason = rj.Reason
		item.RejectedAt = formatTime(rj.RejectedAt)
	}
	return item
}

func (d dynamoOrder) toOrder() *order.Order {
	o := &order.Order{
		ID:           d.ID,
		StoreID:      d.StoreID,
		CustomerID:   d.CustomerID,
		ContactEmail: d.ContactEmail,
		Status:       order.Status(d.Status),
		Items:        d.Items,
		Total:        d.Total,
		Notes:        d.Notes,
		CreatedAt:    parseTime(d.CreatedAt),
		UpdatedAt:    parseTime(d.UpdatedAt),
		Version:      d.Version,
	}
	if d.CancelRequestedAt != "" {
		o.CancellationRequest = &order.CancellationRequest{
			RequestedAt:    parseTime(d.CancelRequestedAt),
			Reason:         d.CancelReason,
			PreviousStatus: order.Status(d.CancelPreviousStatus),
		}
	}
	if d.RejectedAt != "" {
		o.Rejection = &order.Rejection{Reason: d.RejectionReason, RejectedAt: parseTime(d.RejectedAt)}
	}
	return o
}

func fromEvent(e order.Event) dynamoEvent {
	occurred := formatTime(e.OccurredAt)
	return dynamoEvent{
		Target:         e.Target.Key(),
		SortKey:        occurred + "#" + e.ID,
		ID:             e.ID,
		OrderID:        e.OrderID,
		StoreID:        e.StoreID,
		TargetRole:     string(e.Target.Role),
		TargetID:       e.Target.ID,
		PreviousStatus: string(e.PreviousStatus),
		NewStatus:      string(e.NewStatus),
		Reason:         e.Reason,
		OccurredAt:     occurred,
		Seen:           false,
	}
}

func (d dynamoEvent) toEvent() order.Event {
	return order.Event{
		ID:             d.ID,
		OrderID:        d.OrderID,
		StoreID:        d.StoreID,
		Target:         order.Recipient{Role: order.Role(d.TargetRole), ID: d.TargetID},
		PreviousStatus: order.Status(d.PreviousStatus),
		NewStatus:      order.Status(d.NewStatus),
		Reason:         d.Reason,
		OccurredAt:     parseTime(d.OccurredAt),
		Seen:           d.Seen,
	}
}
