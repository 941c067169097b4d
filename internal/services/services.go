package services

import (
	"sync"

	"github.com/kbconsole/answerrelay/internal/config"
	"github.com/kbconsole/answerrelay/internal/connections"
	"github.com/kbconsole/answerrelay/internal/infrastructure/backend"
	"github.com/kbconsole/answerrelay/internal/infrastructure/openai"
	"github.com/kbconsole/answerrelay/internal/infrastructure/redis"
	"github.com/kbconsole/answerrelay/internal/services/relay"
	"github.com/kbconsole/answerrelay/internal/services/turns"
	"github.com/kbconsole/answerrelay/pkg/logger"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

type Services struct {
	connectionManager *connections.Manager
	redisService      *redis.Service
	relayService      *relay.Service
	turnService       *turns.Service
}

// InitializeServices initializes all required services
func InitializeServices() (*Services, error) {
	clog := logger.Component(logger.APP)
	servicesMu.Lock()
	defer servicesMu.Unlock()

	clog.Info().Msg("Initializing core services")

	// Initialize Redis service (optional)
	redisService := redis.NewService()
	clog.Info().Bool("enabled", redisService != nil).Msg("Initializing Redis service")

	turnService := turns.NewService(redisService, config.GetTurnTTL())
	clog.Info().Msg("Initializing turn service")

	source := newSource(config.GetDeltaSource())
	relayService := relay.NewService(source, turnService)
	relayService.SetCheckpointInterval(config.GetTurnCheckpoint())
	clog.Info().Bool("ready", relayService.Ready()).Msg("Initializing relay service")

	connectionManager := connections.NewManager(connections.TimeoutsFromConfig())

	clog.Info().Msg("All services initialized successfully")

	return &Services{
		connectionManager: connectionManager,
		redisService:      redisService,
		relayService:      relayService,
		turnService:       turnService,
	}, nil
}

// newSource returns nil when the selected upstream is not configured. The
// server still starts; ask endpoints then report the source as unavailable.
func newSource(kind string) relay.Source {
	clog := logger.Component(logger.APP)
	switch kind {
	case config.SourceOpenAI:
		openAIService := openai.NewService()
		if openAIService == nil {
			clog.Error().Msg("DELTA_SOURCE is openai but OpenAI is not configured")
			return nil
		}
		return openAIService
	default:
		backendService, err := backend.NewService()
		if err != nil {
			clog.Error().Err(err).Msg("Failed to initialize backend delta source")
			return nil
		}
		return backendService
	}
}

// GetRelayService returns the relay service
func (s *Services) GetRelayService() *relay.Service {
	return s.relayService
}

// GetTurnService returns the turn service
func (s *Services) GetTurnService() *turns.Service {
	return s.turnService
}

// GetRedisService returns the Redis service, nil when Redis is disabled
func (s *Services) GetRedisService() *redis.Service {
	return s.redisService
}

// GetConnectionManager returns the WebSocket connection manager
func (s *Services) GetConnectionManager() *connections.Manager {
	return s.connectionManager
}

// Close releases the Redis connection, if any
func (s *Services) Close() error {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	if s.redisService == nil {
		return nil
	}
	return s.redisService.Close()
}
