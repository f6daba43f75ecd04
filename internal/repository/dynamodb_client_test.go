package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"so-summarizer/internal/domain"
)

type fakeDynamo struct {
	putErr        error
	queryOut      *dynamodb.QueryOutput
	queryErr      error
	describeOut   *dynamodb.DescribeTableOutput
	describeErr   error
	createErr     error
	lastPutInput  *dynamodb.PutItemInput
	lastQueryIn   *dynamodb.QueryInput
	createCalled  bool
	describeCalls int
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.describeCalls++
	return f.describeOut, f.describeErr
}

func (f *fakeDynamo) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.createCalled = true
	return &dynamodb.CreateTableOutput{}, f.createErr
}

func makeRecord() domain.QueryHistoryRecord {
	return domain.QueryHistoryRecord{
		ID:          "rec-1",
		UserID:      "user-1",
		URL:         "https://stackoverflow.com/questions/1",
		PageContent: "Q: how?\n\nA: like this",
		Summary:     "- it works\n- use it",
		Queries:     json.RawMessage(`[{"q":"x","a":"y"}]`),
		Timestamp:   "2025-06-01T12:00:00Z",
	}
}

func makeItem(record domain.QueryHistoryRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"userId":      &types.AttributeValueMemberS{Value: record.UserID},
		"id":          &types.AttributeValueMemberS{Value: record.ID},
		"url":         &types.AttributeValueMemberS{Value: record.URL},
		"pageContent": &types.AttributeValueMemberS{Value: record.PageContent},
		"summary":     &types.AttributeValueMemberS{Value: record.Summary},
		"timestamp":   &types.AttributeValueMemberS{Value: record.Timestamp},
	}
	if len(record.Queries) > 0 {
		item["queries"] = &types.AttributeValueMemberS{Value: string(record.Queries)}
	}
	return item
}

func mustNewClient(t *testing.T, db *fakeDynamo, mode WriteMode) *Client {
	t.Helper()
	c, err := New(db, "query-history", mode)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t", ModeUpsert)
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, "  ", ModeUpsert)
	require.Error(t, err)
}

func TestParseWriteMode(t *testing.T) {
	mode, err := ParseWriteMode("")
	require.NoError(t, err)
	require.Equal(t, ModeUpsert, mode)

	mode, err = ParseWriteMode("INSERT")
	require.NoError(t, err)
	require.Equal(t, ModeInsert, mode)

	_, err = ParseWriteMode("maybe")
	require.Error(t, err)
}

func TestAppend_Upsert(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db, ModeUpsert)

	require.NoError(t, c.Append(context.Background(), makeRecord()))
	require.NotNil(t, db.lastPutInput)
	require.Nil(t, db.lastPutInput.ConditionExpression, "upsert must not be conditional")

	queries, ok := db.lastPutInput.Item["queries"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	require.JSONEq(t, `[{"q":"x","a":"y"}]`, queries.Value)
}

func TestAppend_InsertModeIsConditional(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db, ModeInsert)

	require.NoError(t, c.Append(context.Background(), makeRecord()))
	require.NotNil(t, db.lastPutInput.ConditionExpression)
	require.Contains(t, *db.lastPutInput.ConditionExpression, "attribute_not_exists")
}

func TestAppend_DuplicateInInsertMode(t *testing.T) {
	db := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{}}
	c := mustNewClient(t, db, ModeInsert)

	err := c.Append(context.Background(), makeRecord())
	require.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestAppend_MissingRequiredField(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{}, ModeUpsert)

	record := makeRecord()
	record.Summary = ""
	err := c.Append(context.Background(), record)
	require.Error(t, err)
	require.Contains(t, err.Error(), "summary")
}

func TestAppend_InvalidQueriesJSON(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{}, ModeUpsert)

	record := makeRecord()
	record.Queries = json.RawMessage(`{not json`)
	err := c.Append(context.Background(), record)
	require.Error(t, err)
	require.Contains(t, err.Error(), "queries")
}

func TestAppend_PutItemError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("boom")}
	c := mustNewClient(t, db, ModeUpsert)

	err := c.Append(context.Background(), makeRecord())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Append")
}

func TestQueryByUser_SortedNewestFirst(t *testing.T) {
	older := makeRecord()
	older.ID = "rec-old"
	older.Timestamp = "2025-06-01T10:00:00Z"
	newer := makeRecord()
	newer.ID = "rec-new"
	newer.Timestamp = "2025-06-01T11:00:00Z"

	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{makeItem(older), makeItem(newer)},
	}}
	c := mustNewClient(t, db, ModeUpsert)

	records, err := c.QueryByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "rec-new", records[0].ID)
	require.Equal(t, "rec-old", records[1].ID)
}

func TestQueryByUser_EmptyPartition(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	c := mustNewClient(t, db, ModeUpsert)

	records, err := c.QueryByUser(context.Background(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestQueryByUser_RoundTripsQueries(t *testing.T) {
	record := makeRecord()
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{makeItem(record)},
	}}
	c := mustNewClient(t, db, ModeUpsert)

	records, err := c.QueryByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, record, records[0])
}

func TestQueryByUser_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("down")}
	c := mustNewClient(t, db, ModeUpsert)

	_, err := c.QueryByUser(context.Background(), "user-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "QueryByUser")
}

func TestQueryByUser_EmptyUserID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{}, ModeUpsert)
	_, err := c.QueryByUser(context.Background(), " ")
	require.Error(t, err)
}

func TestEnsureTable_ExistingTable(t *testing.T) {
	db := &fakeDynamo{describeOut: &dynamodb.DescribeTableOutput{}}
	c := mustNewClient(t, db, ModeUpsert)

	require.NoError(t, c.EnsureTable(context.Background()))
	require.False(t, db.createCalled)
}

// creatingDynamo reports the table missing until CreateTable is called,
// then active, so the waiter resolves on its first poll.
type creatingDynamo struct {
	fakeDynamo
}

func (f *creatingDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.describeCalls++
	if !f.createCalled {
		return nil, &types.ResourceNotFoundException{}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableStatus: types.TableStatusActive},
	}, nil
}

func TestEnsureTable_CreatesMissingTable(t *testing.T) {
	db := &creatingDynamo{}
	c, err := New(db, "query-history", ModeUpsert)
	require.NoError(t, err)

	require.NoError(t, c.EnsureTable(context.Background()))
	require.True(t, db.createCalled)
}

func TestEnsureTable_DescribeError(t *testing.T) {
	db := &fakeDynamo{describeErr: errors.New("denied")}
	c := mustNewClient(t, db, ModeUpsert)

	err := c.EnsureTable(context.Background())
	require.Error(t, err)
	require.False(t, db.createCalled)
}
