// Package httpapi implements the board repository port over the relay's
// REST API. It is the durable write path for sessions running outside the
// relay process; every write here comes back to the session again through
// the change feed.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/application/queries"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	"storyboard/pkg/common"
	pkgerrors "storyboard/pkg/errors"
)

const defaultRequestTimeout = 15 * time.Second

// BoardClient implements ports.BoardRepository against a relay instance
type BoardClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewBoardClient creates a client for the relay at baseURL
// (e.g. http://localhost:8080)
func NewBoardClient(baseURL string, client *http.Client, logger *zap.Logger) *BoardClient {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &BoardClient{
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

// GetBoard implements ports.BoardRepository
func (c *BoardClient) GetBoard(ctx context.Context, id valueobjects.BoardID) (*aggregates.Board, error) {
	var view queries.BoardView
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/boards/%s", id.String()), nil, &view)
	if err != nil {
		return nil, err
	}
	return boardFromView(view)
}

// SaveBoard implements ports.BoardRepository
func (c *BoardClient) SaveBoard(ctx context.Context, board *aggregates.Board) error {
	body := map[string]interface{}{
		"name":         board.Name(),
		"share_policy": string(board.SharePolicy()),
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/boards/%s", board.ID().String()), body, nil)
}

// SaveFrame implements ports.BoardRepository. An update is tried first; a
// frame the relay has never seen falls through to creation under the same
// id, keeping the optimistic local copy and the committed one the same
// entity.
func (c *BoardClient) SaveFrame(ctx context.Context, frame *entities.Frame) error {
	boardPath := fmt.Sprintf("/api/v1/boards/%s/frames", frame.BoardID().String())

	update := map[string]interface{}{
		"asset_ref":   frame.AssetRef(),
		"duration_ms": frame.Duration().Milliseconds(),
		"finalize":    frame.Status() == entities.StatusFinal,
	}
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("%s/%s", boardPath, frame.ID().String()), update, nil)
	if err == nil || !pkgerrors.IsNotFound(err) {
		return err
	}

	create := map[string]interface{}{
		"id":          frame.ID().String(),
		"x":           frame.Position().X(),
		"y":           frame.Position().Y(),
		"asset_ref":   frame.AssetRef(),
		"duration_ms": frame.Duration().Milliseconds(),
	}
	return c.do(ctx, http.MethodPost, boardPath, create, nil)
}

// UpdateFramePosition implements ports.BoardRepository
func (c *BoardClient) UpdateFramePosition(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID, position valueobjects.Position) error {
	body := map[string]interface{}{
		"x": position.X(),
		"y": position.Y(),
	}
	path := fmt.Sprintf("/api/v1/boards/%s/frames/%s/position", boardID.String(), frameID.String())
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// DeleteFrame implements ports.BoardRepository
func (c *BoardClient) DeleteFrame(ctx context.Context, boardID valueobjects.BoardID, frameID valueobjects.FrameID) error {
	path := fmt.Sprintf("/api/v1/boards/%s/frames/%s", boardID.String(), frameID.String())
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// SaveConnection implements ports.BoardRepository
func (c *BoardClient) SaveConnection(ctx context.Context, conn *entities.Connection) error {
	body := map[string]interface{}{
		"id":            conn.ID().String(),
		"from_frame_id": conn.From().String(),
		"to_frame_id":   conn.To().String(),
	}
	path := fmt.Sprintf("/api/v1/boards/%s/connections", conn.BoardID().String())
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// DeleteConnection implements ports.BoardRepository
func (c *BoardClient) DeleteConnection(ctx context.Context, boardID valueobjects.BoardID, connID valueobjects.ConnectionID) error {
	path := fmt.Sprintf("/api/v1/boards/%s/connections/%s", boardID.String(), connID.String())
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do runs one request against the relay and decodes the standard response
// envelope into out when given
func (c *BoardClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return pkgerrors.NewTransportError("relay request failed", err)
	}
	defer resp.Body.Close()

	var envelope common.APIResponse
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.NewTransportError("failed to read relay response", err)
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.NewTransportError("malformed relay response", err)
	}

	if !envelope.Success {
		return decodeAPIError(resp.StatusCode, envelope.Error)
	}
	if out != nil {
		data, err := json.Marshal(envelope.Data)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to re-encode response data")
		}
		if err := json.Unmarshal(data, out); err != nil {
			return pkgerrors.Wrap(err, "failed to decode response data")
		}
	}
	return nil
}

// decodeAPIError maps the relay's error envelope back onto the local error
// taxonomy so callers can branch the same way they would in process
func decodeAPIError(status int, info *common.ErrorInfo) error {
	message := "relay request rejected"
	if info != nil && info.Message != "" {
		message = info.Message
	}

	switch status {
	case http.StatusNotFound:
		return pkgerrors.NewNotFoundError(message)
	case http.StatusConflict:
		return pkgerrors.NewConflictError(message)
	case http.StatusForbidden:
		return pkgerrors.NewForbiddenError(message)
	case http.StatusBadRequest:
		return pkgerrors.NewValidationError(message)
	default:
		return pkgerrors.NewInternalError(message)
	}
}

// boardFromView reconstructs the aggregate from the REST read model
func boardFromView(view queries.BoardView) (*aggregates.Board, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, view.CreatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid board created_at")
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, view.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid board updated_at")
	}

	board, err := aggregates.ReconstructBoard(
		valueobjects.BoardID(view.ID),
		view.Name,
		aggregates.SharePolicy(view.SharePolicy),
		createdAt,
		updatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, fv := range view.Frames {
		frame, err := frameFromView(view.ID, fv)
		if err != nil {
			return nil, err
		}
		if err := board.AddFrame(frame); err != nil {
			return nil, err
		}
	}
	for _, cv := range view.Connections {
		conn, err := connectionFromView(view.ID, cv)
		if err != nil {
			return nil, err
		}
		if err := board.AddConnection(conn); err != nil {
			return nil, err
		}
	}
	board.MarkEventsAsCommitted()
	return board, nil
}

func frameFromView(boardID string, view queries.FrameView) (*entities.Frame, error) {
	frameID, err := valueobjects.NewFrameIDFromString(view.ID)
	if err != nil {
		return nil, err
	}
	position, err := valueobjects.NewPosition(view.X, view.Y)
	if err != nil {
		return nil, err
	}
	duration, err := valueobjects.NewFrameDuration(view.DurationMs)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, view.CreatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid frame created_at")
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, view.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid frame updated_at")
	}
	return entities.ReconstructFrame(
		frameID,
		valueobjects.BoardID(boardID),
		position,
		view.AssetRef,
		duration,
		entities.FrameStatus(view.Status),
		createdAt,
		updatedAt,
		view.Version,
	)
}

func connectionFromView(boardID string, view queries.ConnectionView) (*entities.Connection, error) {
	from, err := valueobjects.NewFrameIDFromString(view.FromFrameID)
	if err != nil {
		return nil, err
	}
	to, err := valueobjects.NewFrameIDFromString(view.ToFrameID)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, view.CreatedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid connection created_at")
	}
	return entities.ReconstructConnection(
		valueobjects.ConnectionID(view.ID),
		valueobjects.BoardID(boardID),
		from,
		to,
		createdAt,
	)
}

var _ ports.BoardRepository = (*BoardClient)(nil)
