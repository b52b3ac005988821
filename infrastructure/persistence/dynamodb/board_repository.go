// Package dynamodb implements durable board storage on a DynamoDB single
// table. Boards, frames and connections share one partition per board:
//
//	PK=BOARD#<boardID>  SK=METADATA        board-level fields
//	PK=BOARD#<boardID>  SK=FRAME#<id>      one frame
//	PK=BOARD#<boardID>  SK=CONN#<id>       one connection
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

const (
	entityBoard      = "BOARD"
	entityFrame      = "FRAME"
	entityConnection = "CONNECTION"

	skMetadata     = "METADATA"
	skFramePrefix  = "FRAME#"
	skConnPrefix   = "CONN#"
	batchWriteSize = 25
)

// BoardRepository implements ports.BoardRepository on DynamoDB
type BoardRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewBoardRepository creates a new BoardRepository
func NewBoardRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.BoardRepository {
	return &BoardRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// boardItem represents the DynamoDB item structure for board metadata
type boardItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	BoardID     string `dynamodbav:"BoardID"`
	Name        string `dynamodbav:"Name"`
	SharePolicy string `dynamodbav:"SharePolicy"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
	Version     int    `dynamodbav:"Version"`
}

// frameItem represents the DynamoDB item structure for one frame
type frameItem struct {
	PK         string  `dynamodbav:"PK"`
	SK         string  `dynamodbav:"SK"`
	EntityType string  `dynamodbav:"EntityType"`
	BoardID    string  `dynamodbav:"BoardID"`
	FrameID    string  `dynamodbav:"FrameID"`
	X          float64 `dynamodbav:"X"`
	Y          float64 `dynamodbav:"Y"`
	AssetRef   string  `dynamodbav:"AssetRef,omitempty"`
	DurationMs int     `dynamodbav:"DurationMs"`
	Status     string  `dynamodbav:"Status"`
	CreatedAt  string  `dynamodbav:"CreatedAt"`
	UpdatedAt  string  `dynamodbav:"UpdatedAt"`
	Version    int     `dynamodbav:"Version"`
}

// connectionItem represents the DynamoDB item structure for one connection
type connectionItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	BoardID      string `dynamodbav:"BoardID"`
	ConnectionID string `dynamodbav:"ConnectionID"`
	FromFrameID  string `dynamodbav:"FromFrameID"`
	ToFrameID    string `dynamodbav:"ToFrameID"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
}

func boardPK(id valueobjects.BoardID) string {
	return fmt.Sprintf("BOARD#%s", id.String())
}

// GetBoard loads the full board partition and reconstructs the aggregate
func (r *BoardRepository) GetBoard(ctx context.Context, id valueobjects.BoardID) (*aggregates.Board, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(boardPK(id)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to build board query")
	}

	var items []map[string]types.AttributeValue
	var lastKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to query board partition")
		}
		items = append(items, out.Items...)
		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}

	return r.reconstruct(id, items)
}

// reconstruct turns one board partition's items into the aggregate. Frames
// must land before connections so endpoint checks hold.
func (r *BoardRepository) reconstruct(id valueobjects.BoardID, items []map[string]types.AttributeValue) (*aggregates.Board, error) {
	var board *aggregates.Board
	var frames []*entities.Frame
	var conns []*entities.Connection

	for _, raw := range items {
		entityType := ""
		if av, ok := raw["EntityType"].(*types.AttributeValueMemberS); ok {
			entityType = av.Value
		}

		switch entityType {
		case entityBoard:
			var item boardItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, pkgerrors.Wrap(err, "failed to unmarshal board item")
			}
			b, err := unmarshalBoard(item)
			if err != nil {
				return nil, err
			}
			board = b

		case entityFrame:
			var item frameItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, pkgerrors.Wrap(err, "failed to unmarshal frame item")
			}
			frame, err := unmarshalFrame(item)
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)

		case entityConnection:
			var item connectionItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, pkgerrors.Wrap(err, "failed to unmarshal connection item")
			}
			conn, err := unmarshalConnection(item)
			if err != nil {
				return nil, err
			}
			conns = append(conns, conn)
		}
	}

	if board == nil {
		return nil, pkgerrors.NewNotFoundError("board")
	}

	for _, frame := range frames {
		if err := board.AddFrame(frame); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to attach frame %s", frame.ID().String())
		}
	}
	for _, conn := range conns {
		if err := board.AddConnection(conn); err != nil {
			// A connection whose endpoint was deleted mid-cascade is
			// harmless; skip it and let the next cascade pass clean it up.
			r.logger.Warn("skipping dangling connection during load",
				zap.String("connectionID", conn.ID().String()),
				zap.Error(err),
			)
		}
	}
	board.MarkEventsAsCommitted()

	r.logger.Debug("board loaded from DynamoDB",
		zap.String("boardID", id.String()),
		zap.Int("frames", len(frames)),
		zap.Int("connections", len(conns)),
	)
	return board, nil
}

// SaveBoard persists board-level fields
func (r *BoardRepository) SaveBoard(ctx context.Context, board *aggregates.Board) error {
	item := boardItem{
		PK:          boardPK(board.ID()),
		SK:          skMetadata,
		EntityType:  entityBoard,
		BoardID:     board.ID().String(),
		Name:        board.Name(),
		SharePolicy: string(board.SharePolicy()),
		CreatedAt:   board.CreatedAt().Format(time.RFC3339Nano),
		UpdatedAt:   board.UpdatedAt().Format(time.RFC3339Nano),
		Version:     board.Version(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal board")
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return pkgerrors.Wrap(err, "failed to save board")
	}
	return nil
}

// SaveFrame persists a frame (create or update)
func (r *BoardRepository) SaveFrame(ctx context.Context, frame *entities.Frame) error {
	item := frameItem{
		PK:         boardPK(frame.BoardID()),
		SK:         skFramePrefix + frame.ID().String(),
		EntityType: entityFrame,
		BoardID:    frame.BoardID().String(),
		FrameID:    frame.ID().String(),
		X:          frame.Position().X(),
		Y:          frame.Position().Y(),
		AssetRef:   frame.AssetRef(),
		DurationMs: frame.Duration().Milliseconds(),
		Status:     string(frame.Status()),
		CreatedAt:  frame.CreatedAt().Format(time.RFC3339Nano),
		UpdatedAt:  frame.UpdatedAt().Format(time.RFC3339Nano),
		Version:    frame.Version(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal frame")
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return pkgerrors.Wrap(err, "failed to save frame")
	}
	return nil
}

// UpdateFramePosition writes only a frame's position, last-writer-wins. The
// condition guards against resurrecting a frame deleted mid-drag.
func (r *BoardRepository) UpdateFramePosition(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID, position valueobjects.Position) error {
	update := expression.
		Set(expression.Name("X"), expression.Value(position.X())).
		Set(expression.Name("Y"), expression.Value(position.Y())).
		Set(expression.Name("UpdatedAt"), expression.Value(time.Now().Format(time.RFC3339Nano))).
		Add(expression.Name("Version"), expression.Value(1))
	cond := expression.AttributeExists(expression.Name("PK"))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to build position update")
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: boardPK(boardID)},
			"SK": &types.AttributeValueMemberS{Value: skFramePrefix + frameID.String()},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return pkgerrors.NewNotFoundError("frame")
		}
		return pkgerrors.Wrap(err, "failed to update frame position")
	}
	return nil
}

// DeleteFrame removes a frame and every connection touching it
func (r *BoardRepository) DeleteFrame(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID) error {
	dangling, err := r.connectionsTouching(ctx, boardID, frameID)
	if err != nil {
		return err
	}

	requests := make([]types.WriteRequest, 0, len(dangling)+1)
	requests = append(requests, types.WriteRequest{
		DeleteRequest: &types.DeleteRequest{
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: boardPK(boardID)},
				"SK": &types.AttributeValueMemberS{Value: skFramePrefix + frameID.String()},
			},
		},
	})
	for _, connID := range dangling {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: boardPK(boardID)},
					"SK": &types.AttributeValueMemberS{Value: skConnPrefix + connID.String()},
				},
			},
		})
	}

	for start := 0; start < len(requests); start += batchWriteSize {
		end := start + batchWriteSize
		if end > len(requests) {
			end = len(requests)
		}
		batch := map[string][]types.WriteRequest{r.tableName: requests[start:end]}
		for len(batch[r.tableName]) > 0 {
			out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: batch,
			})
			if err != nil {
				return pkgerrors.Wrap(err, "failed to delete frame cascade")
			}
			batch = out.UnprocessedItems
		}
	}

	r.logger.Debug("frame deleted with cascade",
		zap.String("boardID", boardID.String()),
		zap.String("frameID", frameID.String()),
		zap.Int("connections", len(dangling)),
	)
	return nil
}

// connectionsTouching lists connection ids with the frame as either endpoint
func (r *BoardRepository) connectionsTouching(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID) ([]valueobjects.ConnectionID, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(boardPK(boardID))).
		And(expression.Key("SK").BeginsWith(skConnPrefix))
	filter := expression.Name("FromFrameID").Equal(expression.Value(frameID.String())).
		Or(expression.Name("ToFrameID").Equal(expression.Value(frameID.String())))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to build connection query")
	}

	var ids []valueobjects.ConnectionID
	var lastKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to query connections")
		}
		for _, raw := range out.Items {
			var item connectionItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, pkgerrors.Wrap(err, "failed to unmarshal connection item")
			}
			ids = append(ids, valueobjects.ConnectionID(item.ConnectionID))
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return ids, nil
}

// SaveConnection persists a connection
func (r *BoardRepository) SaveConnection(ctx context.Context, conn *entities.Connection) error {
	item := connectionItem{
		PK:           boardPK(conn.BoardID()),
		SK:           skConnPrefix + conn.ID().String(),
		EntityType:   entityConnection,
		BoardID:      conn.BoardID().String(),
		ConnectionID: conn.ID().String(),
		FromFrameID:  conn.From().String(),
		ToFrameID:    conn.To().String(),
		CreatedAt:    conn.CreatedAt().Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal connection")
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return pkgerrors.Wrap(err, "failed to save connection")
	}
	return nil
}

// DeleteConnection removes a connection
func (r *BoardRepository) DeleteConnection(ctx context.Context, boardID valueobjects.BoardID, connID valueobjects.ConnectionID) error {
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: boardPK(boardID)},
			"SK": &types.AttributeValueMemberS{Value: skConnPrefix + connID.String()},
		},
	}); err != nil {
		return pkgerrors.Wrap(err, "failed to delete connection")
	}
	return nil
}

func unmarshalBoard(item boardItem) (*aggregates.Board, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid board CreatedAt")
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid board UpdatedAt")
	}
	return aggregates.ReconstructBoard(
		valueobjects.BoardID(item.BoardID),
		item.Name,
		aggregates.SharePolicy(item.SharePolicy),
		createdAt,
		updatedAt,
	)
}

func unmarshalFrame(item frameItem) (*entities.Frame, error) {
	frameID, err := valueobjects.NewFrameIDFromString(item.FrameID)
	if err != nil {
		return nil, err
	}
	position, err := valueobjects.NewPosition(item.X, item.Y)
	if err != nil {
		return nil, err
	}
	duration, err := valueobjects.NewFrameDuration(item.DurationMs)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid frame CreatedAt")
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid frame UpdatedAt")
	}
	return entities.ReconstructFrame(
		frameID,
		valueobjects.BoardID(item.BoardID),
		position,
		item.AssetRef,
		duration,
		entities.FrameStatus(item.Status),
		createdAt,
		updatedAt,
		item.Version,
	)
}

func unmarshalConnection(item connectionItem) (*entities.Connection, error) {
	from, err := valueobjects.NewFrameIDFromString(item.FromFrameID)
	if err != nil {
		return nil, err
	}
	to, err := valueobjects.NewFrameIDFromString(item.ToFrameID)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid connection CreatedAt")
	}
	return entities.ReconstructConnection(
		valueobjects.ConnectionID(item.ConnectionID),
		valueobjects.BoardID(item.BoardID),
		from,
		to,
		createdAt,
	)
}
