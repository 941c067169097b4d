package turns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbconsole/answerrelay/internal/infrastructure/redis"
	"github.com/kbconsole/answerrelay/pkg/logger"
)

const keyPrefix = "answerrelay:turn:"

// sweepInterval is the minimum gap between expiry sweeps of a MemoryStore
const sweepInterval = time.Minute

// ErrNotFound is returned when a turn is unknown or has expired
var ErrNotFound = errors.New("turn not found")

// Turn is the cached view of one question and its streamed answer
type Turn struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Question    string     `json:"question"`
	Safe        string     `json:"html"`
	Accumulated string     `json:"accumulated"`
	State       string     `json:"state"`
	Started     time.Time  `json:"started"`
	Finished    *time.Time `json:"finished,omitempty"`
}

type TurnStore interface {
	Set(ctx context.Context, turn *Turn, ttl time.Duration) error
	Get(ctx context.Context, turnID string) (*Turn, error)
	Delete(ctx context.Context, turnID string) error
}

type RedisStore struct {
	redisService *redis.Service
}

type memoryEntry struct {
	turn    Turn
	expires time.Time
}

type MemoryStore struct {
	mu        sync.RWMutex
	turns     map[string]memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

type Service struct {
	store TurnStore
	ttl   time.Duration
}

// NewService picks Redis when it is reachable and memory otherwise
func NewService(redisService *redis.Service, ttl time.Duration) *Service {
	clog := logger.Component(logger.TURNS)
	var store TurnStore
	if redisService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := redisService.Ping(ctx); err != nil {
			clog.Warn().Err(err).Msg("Redis unreachable, caching turns in memory")
			store = NewMemoryStore()
		} else {
			store = &RedisStore{redisService: redisService}
		}
	} else {
		store = NewMemoryStore()
	}

	return &Service{store: store, ttl: ttl}
}

// NewServiceWithStore is used by tests and callers that bring their own store
func NewServiceWithStore(store TurnStore, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// Redis Store implementation
func (rs *RedisStore) Set(ctx context.Context, turn *Turn, ttl time.Duration) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to encode turn: %w", err)
	}

	return rs.redisService.Set(ctx, keyPrefix+turn.ID, string(data), ttl)
}

func (rs *RedisStore) Get(ctx context.Context, turnID string) (*Turn, error) {
	data, err := rs.redisService.Get(ctx, keyPrefix+turnID)
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var turn Turn
	if err := json.Unmarshal([]byte(data), &turn); err != nil {
		return nil, fmt.Errorf("failed to decode turn: %w", err)
	}

	return &turn, nil
}

func (rs *RedisStore) Delete(ctx context.Context, turnID string) error {
	return rs.redisService.Delete(ctx, keyPrefix+turnID)
}

// Memory Store implementation
func (ms *MemoryStore) Set(_ context.Context, turn *Turn, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	if now.Sub(ms.lastSweep) >= sweepInterval {
		for id, entry := range ms.turns {
			if now.After(entry.expires) {
				delete(ms.turns, id)
			}
		}
		ms.lastSweep = now
	}

	ms.turns[turn.ID] = memoryEntry{turn: *turn, expires: now.Add(ttl)}
	return nil
}

func (ms *MemoryStore) Get(_ context.Context, turnID string) (*Turn, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	entry, exists := ms.turns[turnID]
	if !exists || ms.now().After(entry.expires) {
		return nil, ErrNotFound
	}
	turn := entry.turn
	return &turn, nil
}

func (ms *MemoryStore) Delete(_ context.Context, turnID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.turns, turnID)
	return nil
}

// Save stores the current view of a turn
func (s *Service) Save(ctx context.Context, turn *Turn) error {
	if err := s.store.Set(ctx, turn, s.ttl); err != nil {
		return fmt.Errorf("failed to save turn %s: %w", turn.ID, err)
	}
	return nil
}

// Get returns a cached turn or ErrNotFound
func (s *Service) Get(ctx context.Context, turnID string) (*Turn, error) {
	return s.store.Get(ctx, turnID)
}

// Delete drops a cached turn
func (s *Service) Delete(ctx context.Context, turnID string) error {
	return s.store.Delete(ctx, turnID)
}
