package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"election-system/internal/domain/ballot"
)

// API is the subset of the DynamoDB client the ballot store needs.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// NewClient loads the default AWS credential chain. A non-empty endpoint
// points the client at a local DynamoDB.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

type ballotItem struct {
	ElectionID    string     `dynamodbav:"election_id"`
	ParticipantID string     `dynamodbav:"participant_id"`
	BallotID      string     `dynamodbav:"ballot_id"`
	CandidateID   string     `dynamodbav:"candidate_id"`
	CastAt        time.Time  `dynamodbav:"cast_at"`
	RetractedAt   *time.Time `dynamodbav:"retracted_at,omitempty"`
	IPAddress     string     `dynamodbav:"ip_address,omitempty"`
	UserAgent     string     `dynamodbav:"user_agent,omitempty"`
}

func (it ballotItem) toDomain() ballot.Ballot {
	return ballot.Ballot{
		ID:            it.BallotID,
		ElectionID:    it.ElectionID,
		ParticipantID: it.ParticipantID,
		CandidateID:   it.CandidateID,
		CastAt:        it.CastAt.UTC(),
		RetractedAt:   it.RetractedAt,
		IPAddress:     it.IPAddress,
		UserAgent:     it.UserAgent,
	}
}

// BallotRepo stores ballots in one table keyed by election_id (hash) and
// participant_id (range). Admission is a conditional put on that key.
type BallotRepo struct {
	Client    API
	TableName string
	logger    *slog.Logger
}

func NewBallotRepo(client API, table string, logger *slog.Logger) *BallotRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &BallotRepo{Client: client, TableName: table, logger: logger}
}

// EnsureTable creates the table on first use. Intended for local endpoints.
func (r *BallotRepo) EnsureTable(ctx context.Context) error {
	_, err := r.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.TableName)})
	if err == nil {
		return nil
	}
	var missing *types.ResourceNotFoundException
	if !errors.As(err, &missing) {
		return err
	}
	_, err = r.Client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(r.TableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("election_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("participant_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("election_id"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("participant_id"), KeyType: types.KeyTypeRange},
		},
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", r.TableName, err)
	}
	r.logger.Info("dynamodb table created", "table", r.TableName)
	return nil
}

func (r *BallotRepo) Insert(ctx context.Context, b *ballot.Ballot) error {
	item, err := attributevalue.MarshalMap(ballotItem{
		ElectionID:    b.ElectionID,
		ParticipantID: b.ParticipantID,
		BallotID:      b.ID,
		CandidateID:   b.CandidateID,
		CastAt:        b.CastAt.UTC(),
		IPAddress:     b.IPAddress,
		UserAgent:     b.UserAgent,
	})
	if err != nil {
		return err
	}
	_, err = r.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.TableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(election_id) AND attribute_not_exists(participant_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ballot.ErrAlreadyVoted
		}
		r.logger.Error("ballot put failed", "election_id", b.ElectionID, "error", err)
		return err
	}
	return nil
}

func (r *BallotRepo) Exists(ctx context.Context, electionID, participantID string) (bool, error) {
	_, err := r.Get(ctx, electionID, participantID)
	if errors.Is(err, ballot.ErrBallotNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *BallotRepo) Get(ctx context.Context, electionID, participantID string) (*ballot.Ballot, error) {
	out, err := r.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.TableName),
		Key:            key(electionID, participantID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, ballot.ErrBallotNotFound
	}
	var it ballotItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, err
	}
	b := it.toDomain()
	return &b, nil
}

func (r *BallotRepo) Retract(ctx context.Context, electionID, ballotID string, at time.Time) (*ballot.Ballot, error) {
	items, err := r.query(ctx, electionID, ballotID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ballot.ErrBallotNotFound
	}

	atValue, err := attributevalue.Marshal(at.UTC())
	if err != nil {
		return nil, err
	}
	out, err := r.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.TableName),
		Key:                 key(electionID, items[0].ParticipantID),
		UpdateExpression:    aws.String("SET retracted_at = :at"),
		ConditionExpression: aws.String("ballot_id = :ballot_id AND attribute_not_exists(retracted_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at":        atValue,
			":ballot_id": &types.AttributeValueMemberS{Value: ballotID},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ballot.ErrBallotNotFound
		}
		return nil, err
	}
	var it ballotItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &it); err != nil {
		return nil, err
	}
	b := it.toDomain()
	return &b, nil
}

func (r *BallotRepo) CountByElection(ctx context.Context, electionID string) (ballot.Counts, error) {
	counts := ballot.Counts{ByCandidate: make(map[string]int64)}
	items, err := r.query(ctx, electionID, "")
	if err != nil {
		return counts, err
	}
	for _, it := range items {
		if it.RetractedAt != nil {
			counts.Retracted++
			continue
		}
		counts.ByCandidate[it.CandidateID]++
		counts.Active++
	}
	return counts, nil
}

func (r *BallotRepo) ListByElection(ctx context.Context, electionID string) ([]ballot.Ballot, error) {
	items, err := r.query(ctx, electionID, "")
	if err != nil {
		return nil, err
	}
	return toBallots(items), nil
}

// ListByParticipant scans the table; participants are not part of the hash key.
func (r *BallotRepo) ListByParticipant(ctx context.Context, participantID string) ([]ballot.Ballot, error) {
	var items []ballotItem
	var lastKey map[string]types.AttributeValue
	for {
		out, err := r.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.TableName),
			FilterExpression: aws.String("participant_id = :participant_id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":participant_id": &types.AttributeValueMemberS{Value: participantID},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, err
		}
		var page []ballotItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		items = append(items, page...)
		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return toBallots(items), nil
}

// query reads one election partition, optionally narrowed to a single ballot id.
func (r *BallotRepo) query(ctx context.Context, electionID, ballotID string) ([]ballotItem, error) {
	values := map[string]types.AttributeValue{
		":election_id": &types.AttributeValueMemberS{Value: electionID},
	}
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(r.TableName),
		KeyConditionExpression:    aws.String("election_id = :election_id"),
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	}
	if ballotID != "" {
		values[":ballot_id"] = &types.AttributeValueMemberS{Value: ballotID}
		in.FilterExpression = aws.String("ballot_id = :ballot_id")
	}

	var items []ballotItem
	for {
		out, err := r.Client.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		var page []ballotItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		items = append(items, page...)
		if out.LastEvaluatedKey == nil {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return items, nil
}

func key(electionID, participantID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"election_id":    &types.AttributeValueMemberS{Value: electionID},
		"participant_id": &types.AttributeValueMemberS{Value: participantID},
	}
}

func toBallots(items []ballotItem) []ballot.Ballot {
	res := make([]ballot.Ballot, 0, len(items))
	for _, it := range items {
		res = append(res, it.toDomain())
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CastAt.Equal(res[j].CastAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CastAt.Before(res[j].CastAt)
	})
	return res
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

var _ ballot.Repository = (*BallotRepo)(nil)
