package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type sessionItem struct {
	ID        string `dynamodbav:"id"`
	Payload   []byte `dynamodbav:"payload"`
	Version   int64  `dynamodbav:"version"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
}

// DynamoStore keeps sessions in a DynamoDB table keyed by "id". The table's TTL attribute should be
// "expires_at"; items past it are treated as missing even before DynamoDB reaps them.
type DynamoStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoStore wraps an existing client.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, now: time.Now}
}

// ConnectDynamo loads the default AWS configuration chain. A non-empty endpoint overrides the service URL,
// which is how local DynamoDB instances are reached.
func ConnectDynamo(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *DynamoStore) key(sessionID string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		"id": &dbtypes.AttributeValueMemberS{Value: sessionID},
	}
}

// Get returns the stored payload or nil when the item is missing or expired.
func (s *DynamoStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get session %s: %w", sessionID, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item sessionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session item: %w", err)
	}
	if item.ExpiresAt > 0 && s.now().Unix() >= item.ExpiresAt {
		return nil, nil
	}
	return item.Payload, nil
}

func (s *DynamoStore) item(sessionID string, version int64, payload []byte, ttl time.Duration) (map[string]dbtypes.AttributeValue, error) {
	now := s.now()
	item := sessionItem{ID: sessionID, Payload: payload, Version: version, UpdatedAt: now.Unix()}
	if ttl > 0 {
		item.ExpiresAt = now.Add(ttl).Unix()
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session item: %w", err)
	}
	return av, nil
}

// Set writes payload. A positive ttl populates the expires_at attribute.
func (s *DynamoStore) Set(ctx context.Context, sessionID string, payload []byte, ttl time.Duration) error {
	av, err := s.item(sessionID, 0, payload, ttl)
	if err != nil {
		return err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("dynamodb put session %s: %w", sessionID, err)
	}
	return nil
}

// SetVersion writes payload with a conditional put on the version attribute. It reports false when the stored
// item is already at version or beyond.
func (s *DynamoStore) SetVersion(ctx context.Context, sessionID string, version int64, payload []byte, ttl time.Duration) (bool, error) {
	av, err := s.item(sessionID, version, payload, ttl)
	if err != nil {
		return false, err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     av,
		ConditionExpression:      aws.String("attribute_not_exists(#id) OR #version < :version"),
		ExpressionAttributeNames: map[string]string{"#id": "id", "#version": "version"},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":version": &dbtypes.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
		},
	})
	var conflict *dbtypes.ConditionalCheckFailedException
	if errors.As(err, &conflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dynamodb put session %s: %w", sessionID, err)
	}
	return true, nil
}

// Delete removes the item. Deleting a missing item is not an error.
func (s *DynamoStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(sessionID),
	}); err != nil {
		return fmt.Errorf("dynamodb delete session %s: %w", sessionID, err)
	}
	return nil
}
