package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"branchpost/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errLockHeld = errors.New("lock already held")

// DistributedLock provides leased locks using DynamoDB conditional writes.
// A lease that outlives its holder expires after the lock duration.
type DistributedLock struct {
	client       API
	tableName    string
	lockDuration time.Duration
	owner        string
	logger       *zap.Logger
}

// NewDistributedLock creates a lock manager whose leases last lockDuration
func NewDistributedLock(client API, tableName string, lockDuration time.Duration, logger *zap.Logger) *DistributedLock {
	return &DistributedLock{
		client:       client,
		tableName:    tableName,
		lockDuration: lockDuration,
		owner:        uuid.New().String(),
		logger:       logger,
	}
}

// AcquireLock makes one attempt to take the lease on resourceName
func (dl *DistributedLock) AcquireLock(ctx context.Context, resourceName string) (*Lock, error) {
	lockID := fmt.Sprintf("%s_%d", dl.owner, time.Now().UnixNano())
	now := time.Now().UTC()
	expiresAt := now.Add(dl.lockDuration)

	input := &dynamodb.PutItemInput{
		TableName: aws.String(dl.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: "LOCK#" + resourceName},
			"SK":         &types.AttributeValueMemberS{Value: "LOCK"},
			"LockID":     &types.AttributeValueMemberS{Value: lockID},
			"Owner":      &types.AttributeValueMemberS{Value: dl.owner},
			"AcquiredAt": &types.AttributeValueMemberS{Value: formatTime(now)},
			"ExpiresAt":  &types.AttributeValueMemberS{Value: formatTime(expiresAt)},
			"TTL":        &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: formatTime(now)},
		},
	}

	if _, err := dl.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, errLockHeld
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	dl.logger.Debug("Lock acquired",
		zap.String("resource", resourceName),
		zap.String("lockID", lockID),
	)
	return &Lock{dl: dl, resourceName: resourceName, lockID: lockID, expiresAt: expiresAt}, nil
}

// WaitLock retries AcquireLock with backoff until it succeeds or ctx ends
func (dl *DistributedLock) WaitLock(ctx context.Context, resourceName string) (*Lock, error) {
	retryInterval := 50 * time.Millisecond
	for {
		lock, err := dl.AcquireLock(ctx, resourceName)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, errLockHeld) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock on %s: %w", resourceName, ctx.Err())
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}
}

// ReleaseLock deletes the lease if this owner still holds it
func (dl *DistributedLock) ReleaseLock(ctx context.Context, resourceName, lockID string) error {
	_, err := dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(dl.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "LOCK#" + resourceName},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
		ConditionExpression: aws.String("LockID = :lockId AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
			":owner":  &types.AttributeValueMemberS{Value: dl.owner},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			dl.logger.Warn("Lock already released or taken over",
				zap.String("resource", resourceName),
				zap.String("lockID", lockID),
			)
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Lock is an acquired lease
type Lock struct {
	dl           *DistributedLock
	resourceName string
	lockID       string
	expiresAt    time.Time
}

// Release gives the lease back
func (l *Lock) Release(ctx context.Context) error {
	return l.dl.ReleaseLock(ctx, l.resourceName, l.lockID)
}

// IsExpired reports whether the lease ran out
func (l *Lock) IsExpired() bool {
	return time.Now().After(l.expiresAt)
}

// RunLocker serializes orchestrator calls on the same run across processes
type RunLocker struct {
	lock   *DistributedLock
	logger *zap.Logger
}

// NewRunLocker creates a run locker on top of a distributed lock
func NewRunLocker(lock *DistributedLock, logger *zap.Logger) *RunLocker {
	return &RunLocker{lock: lock, logger: logger}
}

// Lock blocks until the run's lease is held or ctx ends
func (r *RunLocker) Lock(ctx context.Context, runID valueobjects.RunID) (func(), error) {
	lock, err := r.lock.WaitLock(ctx, "run:"+runID.String())
	if err != nil {
		return nil, err
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			r.logger.Warn("Failed to release run lock",
				zap.String("runID", runID.String()),
				zap.Error(err),
			)
		}
	}, nil
}
