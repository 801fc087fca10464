package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-core/internal/domain"
)

// UserNotificationRepo provides typed DynamoDB operations for the per-user
// notification projection table. Rows are keyed "userID#notificationID" so
// upserts from realtime receipt and from server-side materialization land on
// the same row.
type UserNotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserNotificationRepo(client *dynamodb.Client, tableName string) *UserNotificationRepo {
	return &UserNotificationRepo{client: client, tableName: tableName}
}

// Key derives the projection row key for a user/notification pair.
func Key(userID, notificationID string) string {
	return userID + "#" + notificationID
}

// Upsert writes the projection row, overwriting any previous version.
func (r *UserNotificationRepo) Upsert(ctx context.Context, un *domain.UserNotification) error {
	un.UserNotificationID = Key(un.UserID, un.NotificationID)
	item, err := attributevalue.MarshalMap(un)
	if err != nil {
		return fmt.Errorf("marshal user notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListByUser returns the user's projection rows ordered newest first. Offset
// is applied client-side: DynamoDB pages by cursor, so the query over-fetches
// offset+limit rows and slices. Offsets stay small here (the UI pages by 20).
func (r *UserNotificationRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.UserNotification, error) {
	fetch := int32(limit + offset)
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-created_at-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false), // newest first
		Limit:            aws.Int32(fetch),
	})
	if err != nil {
		return nil, err
	}
	var rows []domain.UserNotification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &rows); err != nil {
		return nil, err
	}
	if offset >= len(rows) {
		return []domain.UserNotification{}, nil
	}
	return rows[offset:], nil
}

// CountUnread counts the user's rows with no read_at set.
func (r *UserNotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-created_at-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("attribute_not_exists(read_at) OR read_at = :null"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":  &types.AttributeValueMemberS{Value: userID},
			":null": &types.AttributeValueMemberNULL{Value: true},
		},
		Select: types.SelectCount,
	})
	if err != nil {
		return 0, err
	}
	return int(out.Count), nil
}

// SetTimestamp sets one of the lifecycle timestamps (delivered_at, read_at,
// clicked_at, dismissed_at) if and only if it is not already set. Once a
// timestamp is written it is never cleared or overwritten, so the transition
// is idempotent — a second call is a no-op, not an error.
func (r *UserNotificationRepo) SetTimestamp(ctx context.Context, userID, notificationID, field string, at time.Time) error {
	av, err := attributevalue.Marshal(at)
	if err != nil {
		return fmt.Errorf("marshal timestamp: %w", err)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("user_notification_id", Key(userID, notificationID)),
		UpdateExpression:    aws.String("SET #f = :v"),
		ConditionExpression: aws.String("attribute_not_exists(#f) OR #f = :null"),
		ExpressionAttributeNames: map[string]string{
			"#f": field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v":    av,
			":null": &types.AttributeValueMemberNULL{Value: true},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil // already set — monotonic, set-once
		}
		return err
	}
	return nil
}

// DismissAll soft-dismisses every row for the user that is not already
// dismissed. Per-row failures are collected but do not stop the sweep.
func (r *UserNotificationRepo) DismissAll(ctx context.Context, userID string) error {
	rows, err := r.ListByUser(ctx, userID, 1000, 0)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	var firstErr error
	for _, row := range rows {
		if row.DismissedAt != nil {
			continue
		}
		if err := r.SetTimestamp(ctx, userID, row.NotificationID, "dismissed_at", now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
