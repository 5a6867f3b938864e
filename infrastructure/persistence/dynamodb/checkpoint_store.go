package dynamodb

import (
	"context"
	"encoding/json"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CheckpointStore keeps each run's state as one JSON document
type CheckpointStore struct {
	client    API
	tableName string
}

// NewCheckpointStore creates a checkpoint store
func NewCheckpointStore(client API, tableName string) *CheckpointStore {
	return &CheckpointStore{client: client, tableName: tableName}
}

type checkpointItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	RunID      string `dynamodbav:"RunID"`
	SessionID  string `dynamodbav:"SessionID"`
	Phase      string `dynamodbav:"Phase"`
	State      string `dynamodbav:"State"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// Load returns the stored run state
func (s *CheckpointStore) Load(ctx context.Context, runID valueobjects.RunID) (*entities.OrchestratorState, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: runPK(runID.String())},
			"SK": &types.AttributeValueMemberS{Value: skCheckpoint},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get checkpoint", err)
	}
	if len(result.Item) == 0 {
		return nil, pkgerrors.NewNotFoundError("run").WithDetail("run_id", runID.String())
	}

	var item checkpointItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal checkpoint", err)
	}
	var state entities.OrchestratorState
	if err := json.Unmarshal([]byte(item.State), &state); err != nil {
		return nil, pkgerrors.NewDatabaseError("decode checkpoint", err)
	}
	return &state, nil
}

// Save replaces the stored run state
func (s *CheckpointStore) Save(ctx context.Context, state *entities.OrchestratorState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return pkgerrors.NewInternalError("encode checkpoint").WithCause(err)
	}
	av, err := attributevalue.MarshalMap(checkpointItem{
		PK:         runPK(state.RunID.String()),
		SK:         skCheckpoint,
		EntityType: "RUN",
		RunID:      state.RunID.String(),
		SessionID:  state.SessionID,
		Phase:      string(state.Phase),
		State:      string(data),
		UpdatedAt:  formatTime(state.UpdatedAt),
	})
	if err != nil {
		return pkgerrors.NewInternalError("marshal checkpoint").WithCause(err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return pkgerrors.NewDatabaseError("put checkpoint", err)
	}
	return nil
}
