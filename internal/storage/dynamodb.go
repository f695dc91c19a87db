package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config Config
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg Config, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == ModeDynamoLocal {
		// LoadDefaultConfig probes the EC2 IMDS endpoint, which hangs when
		// static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger.With().Str("component", "dynamodb").Logger(),
	}

	if cfg.Mode == ModeDynamoLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, store.logger); err != nil {
			return nil, err
		}
	}

	store.logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

// CreateCallRecord writes the record's attributes where they are not yet
// set, so it commutes with partial updates that reached the table first
func (s *DynamoDBStore) CreateCallRecord(ctx context.Context, record types.CallRecord) error {
	expr, err := expression.NewBuilder().WithUpdate(callCreateExpression(record)).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.CallsTable),
		Key: map[string]dbtypes.AttributeValue{
			"CorrelationID": &dbtypes.AttributeValueMemberS{Value: record.CorrelationID},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}
	return nil
}

// callCreateExpression sets every attribute of r with if_not_exists. Empty
// optional attributes are left out.
func callCreateExpression(r types.CallRecord) expression.UpdateBuilder {
	ifAbsent := func(name string, v any) (expression.NameBuilder, expression.OperandBuilder) {
		n := expression.Name(name)
		return n, expression.IfNotExists(n, expression.Value(v))
	}

	set := expression.Set(ifAbsent("DateKey", r.DateKey))
	add := func(name string, v any) {
		set = set.Set(ifAbsent(name, v))
	}
	addString := func(name, v string) {
		if v != "" {
			add(name, v)
		}
	}

	add("Status", r.Status)
	add("CallerNumber", r.CallerNumber)
	add("CallerName", r.CallerName)
	add("Destination", r.Destination)
	addString("QueueID", r.QueueID)
	addString("Agent", r.Agent)
	addString("QueueOutcome", r.QueueOutcome)
	add("WaitSeconds", r.WaitSeconds)
	add("DurationSeconds", r.DurationSeconds)
	add("HoldSeconds", r.HoldSeconds)
	add("Cause", r.Cause)
	addString("CauseText", r.CauseText)
	addString("RecordingPath", r.RecordingPath)
	add("StartedAt", r.StartedAt)
	if r.AnsweredAt != nil {
		add("AnsweredAt", *r.AnsweredAt)
	}
	if r.EndedAt != nil {
		add("EndedAt", *r.EndedAt)
	}
	add("UpdatedAt", r.UpdatedAt)
	return set
}

func (s *DynamoDBStore) UpdateCallRecord(ctx context.Context, correlationID string, update types.CallUpdate) error {
	set := callUpdateExpression(update)

	expr, err := expression.NewBuilder().WithUpdate(set).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.CallsTable),
		Key: map[string]dbtypes.AttributeValue{
			"CorrelationID": &dbtypes.AttributeValueMemberS{Value: correlationID},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to update call record: %w", err)
	}
	return nil
}

// callUpdateExpression always touches UpdatedAt, so the expression is never empty
func callUpdateExpression(u types.CallUpdate) expression.UpdateBuilder {
	set := expression.Set(expression.Name("UpdatedAt"), expression.Value(nowUTC()))
	add := func(name string, v any) {
		set = set.Set(expression.Name(name), expression.Value(v))
	}
	if u.Status != nil {
		add("Status", *u.Status)
	}
	if u.QueueID != nil {
		add("QueueID", *u.QueueID)
	}
	if u.Agent != nil {
		add("Agent", *u.Agent)
	}
	if u.QueueOutcome != nil {
		add("QueueOutcome", *u.QueueOutcome)
	}
	if u.WaitSeconds != nil {
		add("WaitSeconds", *u.WaitSeconds)
	}
	if u.DurationSeconds != nil {
		add("DurationSeconds", *u.DurationSeconds)
	}
	if u.HoldSeconds != nil {
		add("HoldSeconds", *u.HoldSeconds)
	}
	if u.Cause != nil {
		add("Cause", *u.Cause)
	}
	if u.CauseText != nil {
		add("CauseText", *u.CauseText)
	}
	if u.RecordingPath != nil {
		add("RecordingPath", *u.RecordingPath)
	}
	if u.AnsweredAt != nil {
		add("AnsweredAt", *u.AnsweredAt)
	}
	if u.EndedAt != nil {
		add("EndedAt", *u.EndedAt)
	}
	return set
}

func (s *DynamoDBStore) SaveAgent(ctx context.Context, agent types.AgentRecord) error {
	return s.put(ctx, s.config.AgentsTable, agent, "agent")
}

func (s *DynamoDBStore) DeleteAgent(ctx context.Context, extension string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.AgentsTable),
		Key: map[string]dbtypes.AttributeValue{
			"Extension": &dbtypes.AttributeValueMemberS{Value: extension},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) ListAgents(ctx context.Context) ([]types.AgentRecord, error) {
	var agents []types.AgentRecord
	if err := s.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.config.AgentsTable)}, &agents); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

func (s *DynamoDBStore) SaveShift(ctx context.Context, shift types.ShiftRecord) error {
	return s.put(ctx, s.config.ShiftsTable, shift, "shift")
}

func (s *DynamoDBStore) ListOpenShifts(ctx context.Context) ([]types.ShiftRecord, error) {
	filter := expression.AttributeNotExists(expression.Name("EndTime"))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var shifts []types.ShiftRecord
	err = s.scan(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.ShiftsTable),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, &shifts)
	if err != nil {
		return nil, fmt.Errorf("failed to list open shifts: %w", err)
	}
	return shifts, nil
}

func (s *DynamoDBStore) ListShifts(ctx context.Context, agentID string) ([]types.ShiftRecord, error) {
	var shifts []types.ShiftRecord
	if err := s.query(ctx, s.config.ShiftsTable, "AgentID", agentID, &shifts); err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	return shifts, nil
}

func (s *DynamoDBStore) SaveQueueStats(ctx context.Context, stats types.QueueStats) error {
	return s.put(ctx, s.config.StatsTable, stats, "queue stats")
}

func (s *DynamoDBStore) ListQueueStats(ctx context.Context, queueID string) ([]types.QueueStats, error) {
	var stats []types.QueueStats
	if err := s.query(ctx, s.config.StatsTable, "QueueID", queueID, &stats); err != nil {
		return nil, fmt.Errorf("failed to query queue stats: %w", err)
	}
	return stats, nil
}

func (s *DynamoDBStore) Close() error { return nil }

func (s *DynamoDBStore) put(ctx context.Context, table string, v any, what string) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", what, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", what, err)
	}
	return nil
}

func (s *DynamoDBStore) query(ctx context.Context, table, key, value string, out any) error {
	keyCond := expression.Key(key).Equal(expression.Value(value))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return err
	}
	return attributevalue.UnmarshalListOfMaps(result.Items, out)
}

// scan pages through the whole table
func (s *DynamoDBStore) scan(ctx context.Context, input *dynamodb.ScanInput, out any) error {
	var items []map[string]dbtypes.AttributeValue

	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		items = append(items, page.Items...)
	}
	return attributevalue.UnmarshalListOfMaps(items, out)
}
