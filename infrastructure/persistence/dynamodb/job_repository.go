package dynamodb

import (
	"context"
	"errors"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// JobRepository implements ports.JobRepository on DynamoDB. Status changes
// are conditional writes on the previously observed status.
type JobRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

// NewJobRepository creates a job repository
func NewJobRepository(client API, tableName string, logger *zap.Logger) *JobRepository {
	return &JobRepository{client: client, tableName: tableName, logger: logger}
}

type jobItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	JobID       string `dynamodbav:"JobID"`
	SessionID   string `dynamodbav:"SessionID"`
	Topic       string `dynamodbav:"Topic"`
	Status      string `dynamodbav:"Status"`
	TreeID      string `dynamodbav:"TreeID,omitempty"`
	Error       string `dynamodbav:"Error,omitempty"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
	StartedAt   string `dynamodbav:"StartedAt,omitempty"`
	CompletedAt string `dynamodbav:"CompletedAt,omitempty"`
	Version     int    `dynamodbav:"Version"`
}

func jobKey(id valueobjects.JobID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: jobPK(id.String())},
		"SK": &types.AttributeValueMemberS{Value: skMetadata},
	}
}

// Create stores a new job; an existing id is a conflict
func (r *JobRepository) Create(ctx context.Context, job *entities.GenerationJob) error {
	item := jobItem{
		PK:          jobPK(job.ID().String()),
		SK:          skMetadata,
		EntityType:  "JOB",
		JobID:       job.ID().String(),
		SessionID:   job.SessionID(),
		Topic:       job.Topic(),
		Status:      string(job.Status()),
		TreeID:      job.TreeID().String(),
		Error:       job.ErrorText(),
		CreatedAt:   formatTime(job.CreatedAt()),
		StartedAt:   formatTimePtr(job.StartedAt()),
		CompletedAt: formatTimePtr(job.CompletedAt()),
		Version:     job.Version(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.NewInternalError("marshal job").WithCause(err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return pkgerrors.NewInternalError("build job condition").WithCause(err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewConflictError("job already exists").WithDetail("job_id", job.ID().String())
		}
		return pkgerrors.NewDatabaseError("put job", err)
	}
	return nil
}

// GetByID loads a job
func (r *JobRepository) GetByID(ctx context.Context, id valueobjects.JobID) (*entities.GenerationJob, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            jobKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get job", err)
	}
	if len(result.Item) == 0 {
		return nil, pkgerrors.NewNotFoundError("job").WithDetail("job_id", id.String())
	}

	var item jobItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal job", err)
	}
	return item.toDomain()
}

// Update writes the job's new status only if the stored status is expected
func (r *JobRepository) Update(ctx context.Context, job *entities.GenerationJob, expected entities.JobStatus) error {
	update := expression.
		Set(expression.Name("Status"), expression.Value(string(job.Status()))).
		Set(expression.Name("Version"), expression.Value(job.Version()))
	if !job.TreeID().IsZero() {
		update = update.Set(expression.Name("TreeID"), expression.Value(job.TreeID().String()))
	}
	if job.ErrorText() != "" {
		update = update.Set(expression.Name("Error"), expression.Value(job.ErrorText()))
	}
	if job.StartedAt() != nil {
		update = update.Set(expression.Name("StartedAt"), expression.Value(formatTimePtr(job.StartedAt())))
	}
	if job.CompletedAt() != nil {
		update = update.Set(expression.Name("CompletedAt"), expression.Value(formatTimePtr(job.CompletedAt())))
	}

	cond := expression.Name("Status").Equal(expression.Value(string(expected)))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return pkgerrors.NewInternalError("build job update").WithCause(err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       jobKey(job.ID()),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return pkgerrors.NewDatabaseError("update job", err)
	}

	current, getErr := r.GetByID(ctx, job.ID())
	if getErr != nil {
		return getErr
	}
	r.logger.Debug("Job status changed concurrently",
		zap.String("jobID", job.ID().String()),
		zap.String("expected", string(expected)),
		zap.String("actual", string(current.Status())),
	)
	return pkgerrors.NewConflictError("job status changed concurrently").
		WithCode(pkgerrors.CodeInvalidTransition).
		WithDetails(map[string]interface{}{
			"job_id":   job.ID().String(),
			"expected": string(expected),
			"actual":   string(current.Status()),
		})
}

func (i jobItem) toDomain() (*entities.GenerationJob, error) {
	created, err := parseTime(i.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse job created_at", err)
	}
	started, err := parseTimePtr(i.StartedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse job started_at", err)
	}
	completed, err := parseTimePtr(i.CompletedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse job completed_at", err)
	}
	return entities.ReconstructGenerationJob(
		valueobjects.JobID(i.JobID), i.SessionID, i.Topic, entities.JobStatus(i.Status),
		valueobjects.TreeID(i.TreeID), i.Error,
		created, started, completed, i.Version,
	), nil
}
