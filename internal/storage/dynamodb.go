package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/storyforge/go-storybook-backend/internal/config"
	"github.com/storyforge/go-storybook-backend/internal/domain"
)

// DynamoStore implements StoryStore on a single DynamoDB table.
//
// Item layout:
//
//	pk=user#<userId>   sk=story#info#<storyId>  story metadata, for per-user listing
//	pk=story#<storyId> sk=info                  story metadata, for lookup by story alone
//	pk=story#<storyId> sk=page#<n>              one item per page
//
// The two metadata items are duplicates kept in step by every write that
// touches story-level fields. Pages are fetched with a begins_with(sk)
// query; since "page#10" sorts before "page#2" lexicographically, ListPages
// re-sorts by page number after unmarshalling.
type DynamoStore struct {
	client *dynamodb.DynamoDB
	table  string
}

const (
	skInfo       = "info"
	skStoryInfo  = "story#info#"
	skPagePrefix = "page#"

	batchWriteMax     = 25
	batchWriteRetries = 5
)

// NewDynamoStore creates a DynamoDB-backed store. When cfg.AWSEndpoint is
// set (DynamoDB Local) the table is created on demand.
func NewDynamoStore(cfg config.StoreConfig) (*DynamoStore, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.AWSRegion),
	}
	if cfg.AWSEndpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.AWSEndpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	store := &DynamoStore{
		client: dynamodb.New(sess),
		table:  cfg.StoriesTable,
	}

	if cfg.AWSEndpoint != "" {
		if err := store.ensureTable(); err != nil {
			return nil, fmt.Errorf("failed to ensure table exists: %w", err)
		}
	}

	return store, nil
}

// ensureTable creates the stories table if it does not exist (local testing).
func (d *DynamoStore) ensureTable() error {
	_, err := d.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(d.table),
	})
	if err == nil {
		return nil
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(d.table),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: aws.String("HASH")},
			{AttributeName: aws.String("sk"), KeyType: aws.String("RANGE")},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: aws.String("S")},
			{AttributeName: aws.String("sk"), AttributeType: aws.String("S")},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}
	if _, err := d.client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return d.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(d.table),
	})
}

func userPK(userID string) string           { return "user#" + userID }
func storyPK(storyID string) string         { return "story#" + storyID }
func storyInfoSK(storyID string) string     { return skStoryInfo + storyID }
func pageSK(pageNumber int) string          { return skPagePrefix + strconv.Itoa(pageNumber) }
func keyAttr(s string) *dynamodb.AttributeValue { return &dynamodb.AttributeValue{S: aws.String(s)} }

func itemKey(pk, sk string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"pk": keyAttr(pk),
		"sk": keyAttr(sk),
	}
}

// buildUpdateExpression assembles a SET expression over data plus an
// updatedAt stamp. Keys are iterated in sorted order so the expression is
// deterministic and testable.
func buildUpdateExpression(data map[string]*dynamodb.AttributeValue, now time.Time) (string, map[string]*string, map[string]*dynamodb.AttributeValue) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make(map[string]*string, len(keys)+1)
	values := make(map[string]*dynamodb.AttributeValue, len(keys)+1)

	var b strings.Builder
	b.WriteString("SET")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, " #%s = :%s", k, k)
		names["#"+k] = aws.String(k)
		values[":"+k] = data[k]
	}
	if len(keys) > 0 {
		b.WriteString(",")
	}
	b.WriteString(" #updatedAt = :updatedAt")
	names["#updatedAt"] = aws.String("updatedAt")
	values[":updatedAt"] = &dynamodb.AttributeValue{
		N: aws.String(strconv.FormatInt(now.Unix(), 10)),
	}

	return b.String(), names, values
}

// updateItem runs a SET update against an existing item, translating a
// failed existence condition into ErrNotFound.
func (d *DynamoStore) updateItem(ctx context.Context, pk, sk string, data map[string]*dynamodb.AttributeValue) (map[string]*dynamodb.AttributeValue, error) {
	expr, names, values := buildUpdateExpression(data, time.Now().UTC())

	out, err := d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       itemKey(pk, sk),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(pk)"),
		ReturnValues:              aws.String("ALL_NEW"),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update item %s/%s: %w", pk, sk, err)
	}
	return out.Attributes, nil
}

func (d *DynamoStore) putItem(ctx context.Context, pk, sk string, v any) error {
	item, err := dynamodbattribute.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal item %s/%s: %w", pk, sk, err)
	}
	item["pk"] = keyAttr(pk)
	item["sk"] = keyAttr(sk)

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to store item %s/%s: %w", pk, sk, err)
	}
	return nil
}

func (d *DynamoStore) CreatePendingStory(ctx context.Context, story *domain.Story) error {
	now := time.Now().UTC()
	story.CreatedAt = now
	story.UpdatedAt = now
	if story.Status == "" {
		story.Status = domain.StoryStatusPending
	}

	// Two metadata items: one under the user partition, one under the story.
	if err := d.putItem(ctx, userPK(story.UserID), storyInfoSK(story.StoryID), story); err != nil {
		return err
	}
	return d.putItem(ctx, storyPK(story.StoryID), skInfo, story)
}

func (d *DynamoStore) UpdateStoryStatus(ctx context.Context, userID, storyID string, status domain.StoryStatus) error {
	data := map[string]*dynamodb.AttributeValue{
		"status": {S: aws.String(string(status))},
	}
	if _, err := d.updateItem(ctx, userPK(userID), storyInfoSK(storyID), data); err != nil {
		return err
	}
	_, err := d.updateItem(ctx, storyPK(storyID), skInfo, data)
	return err
}

func (d *DynamoStore) SaveGeneratedStory(ctx context.Context, userID, storyID, title string, pages []domain.StoryPage) error {
	now := time.Now().UTC()
	data := map[string]*dynamodb.AttributeValue{
		"title":  {S: aws.String(title)},
		"status": {S: aws.String(string(domain.StoryStatusCompleted))},
	}
	if _, err := d.updateItem(ctx, userPK(userID), storyInfoSK(storyID), data); err != nil {
		return err
	}
	if _, err := d.updateItem(ctx, storyPK(storyID), skInfo, data); err != nil {
		return err
	}

	writes := make([]*dynamodb.WriteRequest, 0, len(pages))
	for i := range pages {
		pages[i].StoryID = storyID
		pages[i].CreatedAt = now
		pages[i].UpdatedAt = now

		item, err := dynamodbattribute.MarshalMap(pages[i])
		if err != nil {
			return fmt.Errorf("failed to marshal page %d: %w", pages[i].PageNumber, err)
		}
		item["pk"] = keyAttr(storyPK(storyID))
		item["sk"] = keyAttr(pageSK(pages[i].PageNumber))
		writes = append(writes, &dynamodb.WriteRequest{
			PutRequest: &dynamodb.PutRequest{Item: item},
		})
	}
	return d.batchWrite(ctx, writes)
}

// batchWrite sends write requests in chunks, retrying unprocessed items
// with capped exponential backoff.
func (d *DynamoStore) batchWrite(ctx context.Context, writes []*dynamodb.WriteRequest) error {
	for i := 0; i < len(writes); i += batchWriteMax {
		end := i + batchWriteMax
		if end > len(writes) {
			end = len(writes)
		}
		unprocessed := writes[i:end]

		for retry := 0; len(unprocessed) > 0; retry++ {
			out, err := d.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]*dynamodb.WriteRequest{
					d.table: unprocessed,
				},
			})
			if err != nil {
				return fmt.Errorf("batch write failed: %w", err)
			}
			unprocessed = out.UnprocessedItems[d.table]
			if len(unprocessed) == 0 {
				break
			}
			if retry+1 >= batchWriteRetries {
				return fmt.Errorf("failed to persist all items after %d retries", batchWriteRetries)
			}
			backoff := 50 * time.Millisecond << uint(retry+1)
			if backoff > time.Second {
				backoff = time.Second
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (d *DynamoStore) getItem(ctx context.Context, pk, sk string, out any) error {
	res, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       itemKey(pk, sk),
	})
	if err != nil {
		return fmt.Errorf("failed to get item %s/%s: %w", pk, sk, err)
	}
	if res.Item == nil {
		return ErrNotFound
	}
	return dynamodbattribute.UnmarshalMap(res.Item, out)
}

func (d *DynamoStore) GetStory(ctx context.Context, storyID string) (*domain.Story, error) {
	var st domain.Story
	if err := d.getItem(ctx, storyPK(storyID), skInfo, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (d *DynamoStore) GetStoryInfo(ctx context.Context, userID, storyID string) (*domain.Story, error) {
	var st domain.Story
	if err := d.getItem(ctx, userPK(userID), storyInfoSK(storyID), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (d *DynamoStore) queryPrefix(ctx context.Context, pk, skPrefix string) ([]map[string]*dynamodb.AttributeValue, error) {
	var items []map[string]*dynamodb.AttributeValue
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :skPrefix)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pk":       keyAttr(pk),
			":skPrefix": keyAttr(skPrefix),
		},
	}
	err := d.client.QueryPagesWithContext(ctx, input,
		func(page *dynamodb.QueryOutput, lastPage bool) bool {
			items = append(items, page.Items...)
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s %s*: %w", pk, skPrefix, err)
	}
	return items, nil
}

func (d *DynamoStore) ListStories(ctx context.Context, userID string) ([]domain.Story, error) {
	items, err := d.queryPrefix(ctx, userPK(userID), skStoryInfo)
	if err != nil {
		return nil, err
	}
	var stories []domain.Story
	if err := dynamodbattribute.UnmarshalListOfMaps(items, &stories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stories: %w", err)
	}
	sort.Slice(stories, func(i, j int) bool {
		return stories[i].CreatedAt.After(stories[j].CreatedAt)
	})
	return stories, nil
}

func (d *DynamoStore) ListPages(ctx context.Context, storyID string) ([]domain.StoryPage, error) {
	items, err := d.queryPrefix(ctx, storyPK(storyID), skPagePrefix)
	if err != nil {
		return nil, err
	}
	var pages []domain.StoryPage
	if err := dynamodbattribute.UnmarshalListOfMaps(items, &pages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pages: %w", err)
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})
	return pages, nil
}

func (d *DynamoStore) GetPage(ctx context.Context, storyID string, pageNumber int) (*domain.StoryPage, error) {
	var p domain.StoryPage
	if err := d.getItem(ctx, storyPK(storyID), pageSK(pageNumber), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DynamoStore) UpdateStoryTitle(ctx context.Context, userID, storyID, title string) error {
	data := map[string]*dynamodb.AttributeValue{
		"title": {S: aws.String(title)},
	}
	if _, err := d.updateItem(ctx, userPK(userID), storyInfoSK(storyID), data); err != nil {
		return err
	}
	_, err := d.updateItem(ctx, storyPK(storyID), skInfo, data)
	return err
}

func (d *DynamoStore) UpdatePageContent(ctx context.Context, storyID string, pageNumber int, upd PageContentUpdate) error {
	data := map[string]*dynamodb.AttributeValue{}
	if upd.Text != nil {
		data["text"] = &dynamodb.AttributeValue{S: aws.String(*upd.Text)}
	}
	if upd.ImagePrompt != nil {
		data["imageDescription"] = &dynamodb.AttributeValue{S: aws.String(*upd.ImagePrompt)}
	}
	if len(data) == 0 {
		return nil
	}
	_, err := d.updateItem(ctx, storyPK(storyID), pageSK(pageNumber), data)
	return err
}

func (d *DynamoStore) UpdatePageImageStatus(ctx context.Context, storyID string, pageNumber int, status domain.GenerationStatus, jobID string) error {
	data := map[string]*dynamodb.AttributeValue{
		"imageGenerationStatus": {S: aws.String(string(status))},
	}
	if jobID != "" {
		data["imageGenerationJobId"] = &dynamodb.AttributeValue{S: aws.String(jobID)}
	}
	_, err := d.updateItem(ctx, storyPK(storyID), pageSK(pageNumber), data)
	return err
}

func (d *DynamoStore) CompletePageImage(ctx context.Context, in CompletePageImage) (*domain.StoryPage, error) {
	data := map[string]*dynamodb.AttributeValue{
		"imageUrl":              {S: aws.String(in.ImageURL)},
		"imageKey":              {S: aws.String(in.ImageKey)},
		"imageGenerationCount":  {N: aws.String(strconv.Itoa(in.ImageGenerationCount))},
		"imageGenerationDate":   {S: aws.String(in.ImageGenerationDate)},
		"lastImageGeneratedAt":  {S: aws.String(in.LastImageGeneratedAt)},
		"imageGenerationStatus": {S: aws.String(string(domain.GenerationCompleted))},
		"imageGenerationJobId":  {S: aws.String(in.JobID)},
	}
	attrs, err := d.updateItem(ctx, storyPK(in.StoryID), pageSK(in.PageNumber), data)
	if err != nil {
		return nil, err
	}
	var p domain.StoryPage
	if err := dynamodbattribute.UnmarshalMap(attrs, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updated page: %w", err)
	}
	return &p, nil
}

func (d *DynamoStore) DeleteStory(ctx context.Context, userID, storyID string) error {
	// Confirm ownership before touching anything.
	if _, err := d.GetStoryInfo(ctx, userID, storyID); err != nil {
		return err
	}

	items, err := d.queryPrefix(ctx, storyPK(storyID), skPagePrefix)
	if err != nil {
		return err
	}

	writes := make([]*dynamodb.WriteRequest, 0, len(items)+2)
	for _, item := range items {
		writes = append(writes, &dynamodb.WriteRequest{
			DeleteRequest: &dynamodb.DeleteRequest{
				Key: map[string]*dynamodb.AttributeValue{
					"pk": item["pk"],
					"sk": item["sk"],
				},
			},
		})
	}
	writes = append(writes,
		&dynamodb.WriteRequest{DeleteRequest: &dynamodb.DeleteRequest{
			Key: itemKey(storyPK(storyID), skInfo),
		}},
		&dynamodb.WriteRequest{DeleteRequest: &dynamodb.DeleteRequest{
			Key: itemKey(userPK(userID), storyInfoSK(storyID)),
		}},
	)
	return d.batchWrite(ctx, writes)
}

// Close is a no-op; the DynamoDB client holds no persistent connections.
func (d *DynamoStore) Close() error { return nil }
