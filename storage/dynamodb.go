package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/models"
)

// dynamoBatchLimit is the BatchWriteItem request cap.
const dynamoBatchLimit = 25

// Dates are stored at second precision in UTC so string comparison in filter
// expressions orders them correctly.
const dynamoTimeLayout = "2006-01-02T15:04:05Z"

type DynamoDBStore struct {
	client         *dynamodb.Client
	eventsTable    string
	snapshotsTable string
}

type dynamoEventItem struct {
	Slug      string `dynamodbav:"slug"`
	Name      string `dynamodbav:"name"`
	Venue     string `dynamodbav:"venue"`
	EventDate string `dynamodbav:"event_date,omitempty"`
	Region    string `dynamodbav:"region,omitempty"`
	URL       string `dynamodbav:"url"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// Snapshots are keyed by event slug, sorted by "timestamp#cycle#ticket type".
type dynamoSnapshotItem struct {
	EventSlug  string   `dynamodbav:"event_slug"`
	SortKey    string   `dynamodbav:"sk"`
	CycleID    string   `dynamodbav:"cycle_id"`
	Timestamp  string   `dynamodbav:"timestamp"`
	TicketType string   `dynamodbav:"ticket_type"`
	LowestAsk  *float64 `dynamodbav:"lowest_ask,omitempty"`
	HighestBid *float64 `dynamodbav:"highest_bid,omitempty"`
}

func NewDynamoDBStore(ctx context.Context, cfg *config.DynamoDBConfig) (*DynamoDBStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *dynamodb.Client
	if cfg.Endpoint != "" {
		client = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	} else {
		client = dynamodb.NewFromConfig(awsCfg)
	}

	return &DynamoDBStore{
		client:         client,
		eventsTable:    cfg.EventsTable,
		snapshotsTable: cfg.SnapshotsTable,
	}, nil
}

func (s *DynamoDBStore) Close() error {
	return nil
}

// UpsertEvents issues one UpdateItem per event. A put would replace the whole
// item and drop a stored date, so event_date is only SET when present.
func (s *DynamoDBStore) UpsertEvents(ctx context.Context, events []models.Event) error {
	for _, e := range events {
		update := "SET #name = :name, venue = :venue, #url = :url, updated_at = :updated_at"
		values := map[string]types.AttributeValue{
			":name":       &types.AttributeValueMemberS{Value: e.Name},
			":venue":      &types.AttributeValueMemberS{Value: e.Venue},
			":url":        &types.AttributeValueMemberS{Value: e.URL},
			":updated_at": &types.AttributeValueMemberS{Value: e.UpdatedAt.UTC().Format(dynamoTimeLayout)},
		}
		names := map[string]string{"#name": "name", "#url": "url"}

		if e.EventDate != nil {
			update += ", event_date = :event_date"
			values[":event_date"] = &types.AttributeValueMemberS{Value: e.EventDate.UTC().Format(dynamoTimeLayout)}
		}
		if e.Region != "" {
			update += ", #region = :region"
			values[":region"] = &types.AttributeValueMemberS{Value: e.Region}
			names["#region"] = "region"
		}

		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.eventsTable),
			Key: map[string]types.AttributeValue{
				"slug": &types.AttributeValueMemberS{Value: e.Slug},
			},
			UpdateExpression:          aws.String(update),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert event %s: %w", e.Slug, err)
		}
	}
	return nil
}

func (s *DynamoDBStore) ActiveEvents(ctx context.Context, cutoff time.Time) ([]models.Event, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.eventsTable),
		FilterExpression: aws.String("attribute_not_exists(event_date) OR event_date >= :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberS{Value: cutoff.UTC().Format(dynamoTimeLayout)},
		},
	}

	var events []models.Event
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan events: %w", err)
		}

		var items []dynamoEventItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal events: %w", err)
		}
		for _, item := range items {
			events = append(events, item.toEvent())
		}
	}
	return events, nil
}

func (item dynamoEventItem) toEvent() models.Event {
	e := models.Event{
		Slug:   item.Slug,
		Name:   item.Name,
		Venue:  item.Venue,
		Region: item.Region,
		URL:    item.URL,
	}
	if t, err := time.Parse(dynamoTimeLayout, item.EventDate); err == nil {
		e.EventDate = &t
	}
	if t, err := time.Parse(dynamoTimeLayout, item.UpdatedAt); err == nil {
		e.UpdatedAt = t
	}
	return e
}

func newDynamoSnapshotItem(r models.SnapshotRow) dynamoSnapshotItem {
	ts := r.Timestamp.UTC().Format(dynamoTimeLayout)
	return dynamoSnapshotItem{
		EventSlug:  r.EventSlug,
		SortKey:    ts + "#" + r.CycleID.String() + "#" + r.TicketType,
		CycleID:    r.CycleID.String(),
		Timestamp:  ts,
		TicketType: r.TicketType,
		LowestAsk:  r.LowestAsk,
		HighestBid: r.HighestBid,
	}
}

// InsertSnapshots writes rows in BatchWriteItem requests of at most 25 items.
// Items DynamoDB leaves unprocessed are reported as an error.
func (s *DynamoDBStore) InsertSnapshots(ctx context.Context, rows []models.SnapshotRow) error {
	for start := 0; start < len(rows); start += dynamoBatchLimit {
		end := min(start+dynamoBatchLimit, len(rows))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, r := range rows[start:end] {
			item, err := attributevalue.MarshalMap(newDynamoSnapshotItem(r))
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot: %w", err)
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.snapshotsTable: requests},
		})
		if err != nil {
			return fmt.Errorf("failed to write snapshots: %w", err)
		}
		if n := len(out.UnprocessedItems[s.snapshotsTable]); n > 0 {
			return fmt.Errorf("failed to write snapshots: %d items unprocessed", n)
		}
	}
	return nil
}
