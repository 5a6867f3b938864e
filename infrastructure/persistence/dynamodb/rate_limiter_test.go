package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterAPI evaluates the limiter's conditional increment
type counterAPI struct {
	*fakeAPI
	counts map[string]int
	err    error
}

func (c *counterAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	key := itemKey(in.Key)
	limit, _ := strconv.Atoi(in.ExpressionAttributeValues[":limit"].(*types.AttributeValueMemberN).Value)
	if c.counts[key] >= limit {
		return nil, &types.ConditionalCheckFailedException{}
	}
	c.counts[key]++
	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"PK":    in.Key["PK"],
		"SK":    in.Key["SK"],
		"Count": &types.AttributeValueMemberN{Value: strconv.Itoa(c.counts[key])},
	}}, nil
}

func (c *counterAPI) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(c.counts, itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestRateLimiterCountsPerWindow(t *testing.T) {
	ctx := context.Background()
	api := &counterAPI{fakeAPI: newFakeAPI(), counts: map[string]int{}}
	limiter := NewRateLimiter(api, "posts", 2, time.Minute, "ip")
	now := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = limiter.Allow(ctx, "10.0.0.1")
	assert.True(t, ok, "a new window starts empty")

	ok, _ = limiter.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
	require.NoError(t, limiter.Reset(ctx, "10.0.0.1"))
	ok, _ = limiter.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	api := &counterAPI{fakeAPI: newFakeAPI(), counts: map[string]int{}, err: errors.New("throttled")}
	limiter := NewRateLimiter(api, "posts", 1, time.Minute, "ip")

	ok, err := limiter.Allow(context.Background(), "10.0.0.1")
	assert.Error(t, err)
	assert.True(t, ok)
}
