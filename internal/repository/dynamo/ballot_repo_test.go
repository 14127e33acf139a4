package dynamo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-system/internal/domain/ballot"
)

// fakeTable understands exactly the expressions BallotRepo issues.
type fakeTable struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	created bool
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]types.AttributeValue)}
}

func str(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func itemKey(item map[string]types.AttributeValue) string {
	return str(item, "election_id") + "|" + str(item, "participant_id")
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := itemKey(in.Item)
	if _, ok := f.items[k]; ok && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[k] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeTable) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := itemKey(in.Key)
	item, ok := f.items[k]
	if !ok || str(item, "ballot_id") != str(in.ExpressionAttributeValues, ":ballot_id") {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("no match")}
	}
	if _, retracted := item["retracted_at"]; retracted {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("retracted")}
	}
	item["retracted_at"] = in.ExpressionAttributeValues[":at"]
	return &dynamodb.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (f *fakeTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	electionID := str(in.ExpressionAttributeValues, ":election_id")
	ballotID := str(in.ExpressionAttributeValues, ":ballot_id")
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if str(item, "election_id") != electionID {
			continue
		}
		if ballotID != "" && str(item, "ballot_id") != ballotID {
			continue
		}
		out = append(out, copyItem(item))
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeTable) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	participantID := str(in.ExpressionAttributeValues, ":participant_id")
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if str(item, "participant_id") == participantID {
			out = append(out, copyItem(item))
		}
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func (f *fakeTable) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.created {
		return nil, &types.ResourceNotFoundException{Message: aws.String("missing")}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *fakeTable) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = true
	return &dynamodb.CreateTableOutput{}, nil
}

func newBallot(id, electionID, participantID, candidateID string, at time.Time) *ballot.Ballot {
	return &ballot.Ballot{ID: id, ElectionID: electionID, ParticipantID: participantID, CandidateID: candidateID, CastAt: at}
}

func TestEnsureTableCreatesOnce(t *testing.T) {
	table := newFakeTable()
	repo := NewBallotRepo(table, "ballots", nil)

	require.NoError(t, repo.EnsureTable(context.Background()))
	assert.True(t, table.created)
	require.NoError(t, repo.EnsureTable(context.Background()))
}

func TestConditionalPutAdmitsOnce(t *testing.T) {
	repo := NewBallotRepo(newFakeTable(), "ballots", nil)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Insert(ctx, newBallot("b"+string(rune('0'+i)), "e1", "p1", "c1", at))
			if err == nil {
				ok.Add(1)
				return
			}
			assert.ErrorIs(t, err, ballot.ErrAlreadyVoted)
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())

	exists, err := repo.Exists(ctx, "e1", "p1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.Exists(ctx, "e1", "p2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRetractAndCount(t *testing.T) {
	repo := NewBallotRepo(newFakeTable(), "ballots", nil)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, newBallot("b1", "e1", "p1", "c1", at)))
	require.NoError(t, repo.Insert(ctx, newBallot("b2", "e1", "p2", "c1", at.Add(time.Second))))
	require.NoError(t, repo.Insert(ctx, newBallot("b3", "e1", "p3", "c2", at.Add(2*time.Second))))
	require.NoError(t, repo.Insert(ctx, newBallot("b4", "e2", "p1", "c9", at)))

	b, err := repo.Retract(ctx, "e1", "b2", at.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, b.RetractedAt)
	assert.Equal(t, "p2", b.ParticipantID)

	_, err = repo.Retract(ctx, "e1", "b2", at.Add(time.Minute))
	assert.ErrorIs(t, err, ballot.ErrBallotNotFound)
	_, err = repo.Retract(ctx, "e2", "b1", at)
	assert.ErrorIs(t, err, ballot.ErrBallotNotFound)

	counts, err := repo.CountByElection(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"c1": 1, "c2": 1}, counts.ByCandidate)
	assert.EqualValues(t, 2, counts.Active)
	assert.EqualValues(t, 1, counts.Retracted)

	list, err := repo.ListByElection(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"b1", "b2", "b3"}, []string{list[0].ID, list[1].ID, list[2].ID})

	mine, err := repo.ListByParticipant(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	got, err := repo.Get(ctx, "e1", "p2")
	require.NoError(t, err)
	assert.True(t, got.Retracted())
}
