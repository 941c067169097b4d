package connections

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kbconsole/answerrelay/internal/config"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// Manager tracks downstream render sockets and the session each one asks for
type Manager struct {
	connections sync.Map // *websocket.Conn -> string session ID
	mu          sync.RWMutex
	timeouts    TimeoutConfig
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// TimeoutsFromConfig derives socket timeouts from WS_PONG_WAIT and WS_WRITE_WAIT
func TimeoutsFromConfig() TimeoutConfig {
	pongWait := config.GetWSPongWait()
	return TimeoutConfig{
		PongWait:   pongWait,
		PingPeriod: (pongWait * 9) / 10,
		WriteWait:  config.GetWSWriteWait(),
	}
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddConnection registers a socket before it has asked anything
func (m *Manager) AddConnection(conn *websocket.Conn) {
	m.connections.Store(conn, "")
}

// BindSession records the session a socket is currently asking for
func (m *Manager) BindSession(conn *websocket.Conn, sessionID string) {
	if _, ok := m.connections.Load(conn); ok {
		m.connections.Store(conn, sessionID)
	}
}

// SessionOf returns the session bound to a socket
func (m *Manager) SessionOf(conn *websocket.Conn) (string, bool) {
	v, ok := m.connections.Load(conn)
	if !ok {
		return "", false
	}
	sessionID, _ := v.(string)
	return sessionID, sessionID != ""
}

// RemoveConnection removes a WebSocket connection
func (m *Manager) RemoveConnection(conn *websocket.Conn) {
	m.connections.Delete(conn)
}

// GetConnectionCount returns the current number of active connections
func (m *Manager) GetConnectionCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// HasConnection checks if a specific connection exists
func (m *Manager) HasConnection(conn *websocket.Conn) bool {
	_, exists := m.connections.Load(conn)
	return exists
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() TimeoutConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeouts
}

// SetTimeouts updates the timeout configuration
func (m *Manager) SetTimeouts(timeouts TimeoutConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = timeouts
}
