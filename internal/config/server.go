package config

import "time"

// GetPort returns the port the HTTP server listens on
func GetPort() string {
	return GetEnvOrDefault("PORT", "8080")
}

// GetTurnTTL returns how long finished and in-flight turn snapshots are kept
func GetTurnTTL() time.Duration {
	return parseEnvDuration("TURN_TTL", time.Hour)
}

// GetWSPongWait returns how long a downstream socket may stay silent
func GetWSPongWait() time.Duration {
	return parseEnvDuration("WS_PONG_WAIT", 30*time.Second)
}

// GetWSWriteWait returns the write deadline for downstream socket frames
func GetWSWriteWait() time.Duration {
	return parseEnvDuration("WS_WRITE_WAIT", 10*time.Second)
}

// GetTurnCheckpoint returns the minimum gap between cache writes of an
// in-flight turn
func GetTurnCheckpoint() time.Duration {
	return parseEnvDuration("TURN_CHECKPOINT", 250*time.Millisecond)
}
