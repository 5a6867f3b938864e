// Package dynamodb stores trees, jobs and run checkpoints in a single
// DynamoDB table.
//
// Key layout:
//
//	TREE#<id>  METADATA        tree header (GSI2: TREES / <created>#<id>)
//	TREE#<id>  NODE#<node id>  node       (GSI1: NODE#<node id> / TREE#<id>)
//	JOB#<id>   METADATA        generation job
//	RUN#<id>   CHECKPOINT      orchestrator state
//	LOCK#<res> LOCK            run lock lease
package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// API is the subset of the DynamoDB client used by the stores
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

const (
	skMetadata   = "METADATA"
	skCheckpoint = "CHECKPOINT"
	treesGSI2PK  = "TREES"

	// DynamoDB rejects transactions with more items than this
	maxTransactItems = 100

	// Fixed width so stored timestamps compare correctly as strings.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

func treePK(id string) string  { return fmt.Sprintf("TREE#%s", id) }
func nodeSK(id string) string  { return fmt.Sprintf("NODE#%s", id) }
func nodeGSI(id string) string { return fmt.Sprintf("NODE#%s", id) }
func jobPK(id string) string   { return fmt.Sprintf("JOB#%s", id) }
func runPK(id string) string   { return fmt.Sprintf("RUN#%s", id) }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
