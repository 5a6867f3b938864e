package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"branchpost/application/ports"
	"branchpost/domain/core/aggregates"
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

// TreeRepository implements ports.TreeRepository on DynamoDB. A tree and
// all of its nodes are written in one TransactWriteItems call.
type TreeRepository struct {
	client    API
	tableName string
	nodeIndex string
	listIndex string
	logger    *zap.Logger
}

// NewTreeRepository creates a tree repository. nodeIndex serves node lookups
// by id and listIndex serves the newest-first tree listing.
func NewTreeRepository(client API, tableName, nodeIndex, listIndex string, logger *zap.Logger) *TreeRepository {
	return &TreeRepository{
		client:    client,
		tableName: tableName,
		nodeIndex: nodeIndex,
		listIndex: listIndex,
		logger:    logger,
	}
}

type treeItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI2PK     string `dynamodbav:"GSI2PK"`
	GSI2SK     string `dynamodbav:"GSI2SK"`
	EntityType string `dynamodbav:"EntityType"`
	TreeID     string `dynamodbav:"TreeID"`
	Title      string `dynamodbav:"Title"`
	SessionID  string `dynamodbav:"SessionID"`
	NodeCount  int    `dynamodbav:"NodeCount"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

type optionItem struct {
	Text   string `dynamodbav:"Text"`
	Target string `dynamodbav:"Target"`
}

type nodeItem struct {
	PK         string       `dynamodbav:"PK"`
	SK         string       `dynamodbav:"SK"`
	GSI1PK     string       `dynamodbav:"GSI1PK"`
	GSI1SK     string       `dynamodbav:"GSI1SK"`
	EntityType string       `dynamodbav:"EntityType"`
	NodeID     string       `dynamodbav:"NodeID"`
	TreeID     string       `dynamodbav:"TreeID"`
	Content    string       `dynamodbav:"Content"`
	IsRoot     bool         `dynamodbav:"IsRoot"`
	IsEnding   bool         `dynamodbav:"IsEnding"`
	Options    []optionItem `dynamodbav:"Options"`
	CreatedAt  string       `dynamodbav:"CreatedAt"`
}

// Begin starts a buffered tree write
func (r *TreeRepository) Begin(ctx context.Context) (ports.TreeTransaction, error) {
	return &treeTx{repo: r, index: make(map[string]int)}, nil
}

// GetTree loads the tree header
func (r *TreeRepository) GetTree(ctx context.Context, id valueobjects.TreeID) (*aggregates.PostTree, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: treePK(id.String())},
			"SK": &types.AttributeValueMemberS{Value: skMetadata},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get tree", err)
	}
	if len(result.Item) == 0 {
		return nil, pkgerrors.NewNotFoundError("tree").WithDetail("tree_id", id.String())
	}

	var item treeItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal tree", err)
	}
	return item.toDomain()
}

// GetTreeNodes loads all nodes of a tree
func (r *TreeRepository) GetTreeNodes(ctx context.Context, id valueobjects.TreeID) ([]*entities.PostNode, error) {
	if _, err := r.GetTree(ctx, id); err != nil {
		return nil, err
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: treePK(id.String())},
			":sk": &types.AttributeValueMemberS{Value: "NODE#"},
		},
		ConsistentRead: aws.Bool(true),
	}

	var nodes []*entities.PostNode
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query tree nodes", err)
		}
		for _, raw := range result.Items {
			var item nodeItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, pkgerrors.NewDatabaseError("unmarshal node", err)
			}
			node, err := item.toDomain()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	r.logger.Debug("Loaded tree nodes",
		zap.String("treeID", id.String()),
		zap.Int("nodeCount", len(nodes)),
	)
	return nodes, nil
}

// GetNode loads a single node through the node index
func (r *TreeRepository) GetNode(ctx context.Context, id valueobjects.NodeID) (*entities.PostNode, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.nodeIndex),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: nodeGSI(id.String())},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("query node", err)
	}
	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFoundError("node").WithDetail("node_id", id.String())
	}

	var item nodeItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal node", err)
	}
	return item.toDomain()
}

// ListTrees pages through tree headers, newest first
func (r *TreeRepository) ListTrees(ctx context.Context, offset, limit int) ([]*aggregates.PostTree, int, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.listIndex),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: treesGSI2PK},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var all []*aggregates.PostTree
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, 0, pkgerrors.NewDatabaseError("list trees", err)
		}
		for _, raw := range result.Items {
			var item treeItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal tree item", zap.Error(err))
				continue
			}
			tree, err := item.toDomain()
			if err != nil {
				r.logger.Warn("Skipping unreadable tree item", zap.String("treeID", item.TreeID), zap.Error(err))
				continue
			}
			all = append(all, tree)
		}
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	total := len(all)
	if offset >= total {
		return []*aggregates.PostTree{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (i treeItem) toDomain() (*aggregates.PostTree, error) {
	created, err := parseTime(i.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse tree created_at", err)
	}
	return aggregates.ReconstructPostTree(valueobjects.TreeID(i.TreeID), i.Title, i.SessionID, created), nil
}

func (i nodeItem) toDomain() (*entities.PostNode, error) {
	id, err := valueobjects.NewNodeIDFromString(i.NodeID)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse node id", err)
	}
	created, err := parseTime(i.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse node created_at", err)
	}
	options := make([]entities.Option, 0, len(i.Options))
	for _, opt := range i.Options {
		target, err := valueobjects.NewNodeIDFromString(opt.Target)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("parse option target", err)
		}
		options = append(options, entities.Option{Text: opt.Text, Target: target})
	}
	return entities.ReconstructPostNode(id, valueobjects.TreeID(i.TreeID), i.Content, i.IsRoot, i.IsEnding, options, created), nil
}

// treeTx buffers the rows of one tree and writes them in a single
// transaction on Commit.
type treeTx struct {
	repo  *TreeRepository
	tree  *treeItem
	nodes []nodeItem
	index map[string]int
	done  bool
}

func (t *treeTx) CreateTree(ctx context.Context, tree *aggregates.PostTree) error {
	if t.done {
		return pkgerrors.NewConflictError("transaction already finished")
	}
	if t.tree != nil {
		return pkgerrors.NewConflictError("transaction already holds a tree")
	}
	created := formatTime(tree.CreatedAt())
	t.tree = &treeItem{
		PK:         treePK(tree.ID().String()),
		SK:         skMetadata,
		GSI2PK:     treesGSI2PK,
		GSI2SK:     fmt.Sprintf("%s#%s", created, tree.ID().String()),
		EntityType: "TREE",
		TreeID:     tree.ID().String(),
		Title:      tree.Title(),
		SessionID:  tree.SessionID(),
		CreatedAt:  created,
	}
	return nil
}

func (t *treeTx) CreateNode(ctx context.Context, node *entities.PostNode) (valueobjects.NodeID, error) {
	if t.done {
		return valueobjects.NodeID{}, pkgerrors.NewConflictError("transaction already finished")
	}
	id := valueobjects.NewNodeID()
	if err := node.AssignID(id); err != nil {
		return valueobjects.NodeID{}, err
	}

	t.index[id.String()] = len(t.nodes)
	t.nodes = append(t.nodes, nodeItem{
		PK:         treePK(node.TreeID().String()),
		SK:         nodeSK(id.String()),
		GSI1PK:     nodeGSI(id.String()),
		GSI1SK:     treePK(node.TreeID().String()),
		EntityType: "NODE",
		NodeID:     id.String(),
		TreeID:     node.TreeID().String(),
		Content:    node.Content(),
		IsRoot:     node.IsRoot(),
		IsEnding:   node.IsEnding(),
		Options:    []optionItem{},
		CreatedAt:  formatTime(node.CreatedAt()),
	})
	return id, nil
}

func (t *treeTx) AttachOptions(ctx context.Context, node *entities.PostNode) error {
	idx, ok := t.index[node.ID().String()]
	if !ok || t.done {
		return pkgerrors.NewNotFoundError("staged node").WithDetail("node_id", node.ID().String())
	}
	opts := make([]optionItem, 0, len(node.Options()))
	for _, opt := range node.Options() {
		opts = append(opts, optionItem{Text: opt.Text, Target: opt.Target.String()})
	}
	t.nodes[idx].Options = opts
	return nil
}

func (t *treeTx) Commit(ctx context.Context) error {
	if t.done {
		return pkgerrors.NewConflictError("transaction already finished")
	}
	if t.tree == nil {
		return pkgerrors.NewValidationError("no tree staged")
	}
	if len(t.nodes)+1 > maxTransactItems {
		return pkgerrors.NewValidationError("tree exceeds a single write transaction").
			WithDetail("node_count", len(t.nodes))
	}
	t.tree.NodeCount = len(t.nodes)

	notExists, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return pkgerrors.NewInternalError("build tree condition").WithCause(err)
	}

	items := make([]types.TransactWriteItem, 0, len(t.nodes)+1)
	treeAV, err := attributevalue.MarshalMap(t.tree)
	if err != nil {
		return pkgerrors.NewInternalError("marshal tree").WithCause(err)
	}
	items = append(items, types.TransactWriteItem{Put: &types.Put{
		TableName:                aws.String(t.repo.tableName),
		Item:                     treeAV,
		ConditionExpression:      notExists.Condition(),
		ExpressionAttributeNames: notExists.Names(),
	}})
	for i := range t.nodes {
		av, err := attributevalue.MarshalMap(t.nodes[i])
		if err != nil {
			return pkgerrors.NewInternalError("marshal node").WithCause(err)
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(t.repo.tableName),
			Item:      av,
		}})
	}

	if _, err := t.repo.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return pkgerrors.NewConflictError("tree write was cancelled").
				WithDetail("tree_id", t.tree.TreeID).
				WithCause(err)
		}
		return pkgerrors.NewDatabaseError("commit tree", err)
	}

	t.done = true
	t.repo.logger.Debug("Tree committed",
		zap.String("treeID", t.tree.TreeID),
		zap.Int("items", len(items)),
	)
	return nil
}

func (t *treeTx) Rollback(ctx context.Context) error {
	if !t.done {
		t.tree = nil
		t.nodes = nil
		t.index = map[string]int{}
		t.done = true
	}
	return nil
}
