// Package repository persists per-user query history in DynamoDB.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"so-summarizer/internal/domain"
)

const (
	attrUserID      = "userId"
	attrID          = "id"
	attrURL         = "url"
	attrPageContent = "pageContent"
	attrSummary     = "summary"
	attrQueries     = "queries"
	attrTimestamp   = "timestamp"

	createTableWait = 2 * time.Minute
)

// WriteMode decides what happens when a record with an existing id is
// appended again. The id is derived from (url, userId), so repeat
// submissions of the same pair collide by construction.
type WriteMode string

const (
	// ModeUpsert replaces the existing record (default).
	ModeUpsert WriteMode = "upsert"
	// ModeInsert rejects the write with ErrDuplicateRecord.
	ModeInsert WriteMode = "insert"
)

// ParseWriteMode maps a config string to a WriteMode, defaulting to upsert.
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeUpsert):
		return ModeUpsert, nil
	case string(ModeInsert):
		return ModeInsert, nil
	default:
		return "", fmt.Errorf("repository: unknown write mode %q", s)
	}
}

// ErrDuplicateRecord is returned by Append in insert mode when a record with
// the same id already exists.
var ErrDuplicateRecord = errors.New("repository: record already exists")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// HistoryStore defines the query-history operations consumed by the services.
type HistoryStore interface {
	Append(ctx context.Context, record domain.QueryHistoryRecord) error
	QueryByUser(ctx context.Context, userID string) ([]domain.QueryHistoryRecord, error)
}

// Client wraps a DynamoDB table holding query-history records, partitioned
// by userId with the derived record id as range key.
type Client struct {
	api       dynamodbAPI
	tableName string
	writeMode WriteMode
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, writeMode WriteMode) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if writeMode == "" {
		writeMode = ModeUpsert
	}
	return &Client{api: api, tableName: tableName, writeMode: writeMode}, nil
}

// EnsureTable provisions the history table when it does not exist and waits
// for it to become active. Safe to call on every cold start.
func (c *Client) EnsureTable(ctx context.Context) error {
	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("repository: EnsureTable describe: %w", err)
	}

	_, err = c.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(c.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrUserID), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrUserID), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrID), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("repository: EnsureTable create: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)}, createTableWait); err != nil {
		return fmt.Errorf("repository: EnsureTable wait: %w", err)
	}
	return nil
}

// Append writes one history record. In insert mode an existing id fails
// with ErrDuplicateRecord; in upsert mode it is replaced.
func (c *Client) Append(ctx context.Context, record domain.QueryHistoryRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      recordItem(record),
	}
	if c.writeMode == ModeInsert {
		in.ConditionExpression = aws.String("attribute_not_exists(id)")
	}

	_, err := c.api.PutItem(ctx, in)
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return fmt.Errorf("%w: id %s", ErrDuplicateRecord, record.ID)
		}
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// QueryByUser returns all records for a user sorted by timestamp descending.
// A user with no records gets an empty slice, not an error.
func (c *Client) QueryByUser(ctx context.Context, userID string) ([]domain.QueryHistoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("repository: QueryByUser: userID is required")
	}

	records := make([]domain.QueryHistoryRecord, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("userId = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: QueryByUser query: %w", err)
		}
		for _, item := range out.Items {
			record, err := itemToRecord(item)
			if err != nil {
				return nil, fmt.Errorf("repository: QueryByUser unmarshal: %w", err)
			}
			records = append(records, record)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	// The range key is the derived id, so DynamoDB's ordering is by id;
	// the caller-visible contract is newest first.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	return records, nil
}

func validateRecord(record domain.QueryHistoryRecord) error {
	switch {
	case strings.TrimSpace(record.ID) == "":
		return errors.New("repository: Append: id is required")
	case strings.TrimSpace(record.UserID) == "":
		return errors.New("repository: Append: userId is required")
	case strings.TrimSpace(record.URL) == "":
		return errors.New("repository: Append: url is required")
	case record.PageContent == "":
		return errors.New("repository: Append: pageContent is required")
	case record.Summary == "":
		return errors.New("repository: Append: summary is required")
	case strings.TrimSpace(record.Timestamp) == "":
		return errors.New("repository: Append: timestamp is required")
	}
	if len(record.Queries) > 0 && !json.Valid(record.Queries) {
		return errors.New("repository: Append: queries is not valid JSON")
	}
	return nil
}

func recordItem(record domain.QueryHistoryRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrUserID:      &types.AttributeValueMemberS{Value: record.UserID},
		attrID:          &types.AttributeValueMemberS{Value: record.ID},
		attrURL:         &types.AttributeValueMemberS{Value: record.URL},
		attrPageContent: &types.AttributeValueMemberS{Value: record.PageContent},
		attrSummary:     &types.AttributeValueMemberS{Value: record.Summary},
		attrTimestamp:   &types.AttributeValueMemberS{Value: record.Timestamp},
	}
	if len(record.Queries) > 0 {
		// Stored as the raw JSON text so retrieval round-trips unmodified.
		item[attrQueries] = &types.AttributeValueMemberS{Value: string(record.Queries)}
	}
	return item
}

func itemToRecord(item map[string]types.AttributeValue) (domain.QueryHistoryRecord, error) {
	userID, err := strAttr(item, attrUserID)
	if err != nil {
		return domain.QueryHistoryRecord{}, err
	}
	id, err := strAttr(item, attrID)
	if err != nil {
		return domain.QueryHistoryRecord{}, err
	}
	url, err := strAttr(item, attrURL)
	if err != nil {
		return domain.QueryHistoryRecord{}, err
	}
	pageContent, err := strAttr(item, attrPageContent)
	if err != nil {
		return domain.QueryHistoryRecord{}, err
	}
	summary, err := strAttr(item, attrSummary)
	if err != nil {
		return domain.QueryHistoryRecord{}, err
	}
	timestamp, err := strAttr(item, attrTimestamp)
	if err != nil {
		return domain.QueryHistoryRecord{}, err
	}

	record := domain.QueryHistoryRecord{
		ID:          id,
		UserID:      userID,
		URL:         url,
		PageContent: pageContent,
		Summary:     summary,
		Timestamp:   timestamp,
	}
	if queries, qerr := strAttr(item, attrQueries); qerr == nil && queries != "" {
		record.Queries = json.RawMessage(queries)
	}
	return record, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
