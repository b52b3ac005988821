package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/infrastructure/config"
	"storyboard/infrastructure/persistence"
	dynamorepo "storyboard/infrastructure/persistence/dynamodb"
	"storyboard/infrastructure/persistence/memory"
	"storyboard/infrastructure/realtime/websocket"
)

// Storage bundles the repository with the change feed it publishes to; the
// two must come from the same backend wiring.
type Storage struct {
	Repo ports.BoardRepository
	Feed ports.ChangeFeed
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideStorage selects the storage backend. The in-memory store pushes
// its own feed; DynamoDB has no native push so its repository is wrapped
// with a publishing decorator over an in-process feed hub.
func ProvideStorage(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) Storage {
	if cfg.StorageBackend == "dynamodb" {
		hub := persistence.NewFeedHub(logger)
		repo := dynamorepo.NewBoardRepository(client, cfg.DynamoDBTable, logger)
		return Storage{
			Repo: persistence.NewPublishingRepository(repo, hub),
			Feed: hub,
		}
	}

	store := memory.NewStore(logger)
	return Storage{Repo: store, Feed: store}
}

// ProvideRepository unwraps the storage bundle for repository consumers
func ProvideRepository(s Storage) ports.BoardRepository {
	return s.Repo
}

// ProvideFeed unwraps the storage bundle for feed consumers
func ProvideFeed(s Storage) ports.ChangeFeed {
	return s.Feed
}

// ProvideWebSocketHub creates the board-room hub over the change feed
func ProvideWebSocketHub(feed ports.ChangeFeed, logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(feed, logger)
}

// ProvideWebSocketServer creates the upgrade handler over the hub
func ProvideWebSocketServer(hub *websocket.Hub, logger *zap.Logger) *websocket.Server {
	return websocket.NewServer(hub, nil, logger)
}
