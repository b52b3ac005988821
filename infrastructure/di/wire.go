//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/infrastructure/config"
	"storyboard/infrastructure/realtime/websocket"
)

// Container holds all relay dependencies
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Repo     ports.BoardRepository
	Feed     ports.ChangeFeed
	Hub      *websocket.Hub
	WSServer *websocket.Server
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideStorage,
	ProvideRepository,
	ProvideFeed,
	ProvideWebSocketHub,
	ProvideWebSocketServer,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
