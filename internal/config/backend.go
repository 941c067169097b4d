package config

import "strings"

const (
	SourceBackend = "backend"
	SourceOpenAI  = "openai"
)

// GetBackendAPIURL returns the base URL of the knowledge-base backend
func GetBackendAPIURL() string {
	value := GetEnvOrDefault("BACKEND_API_URL", "")
	if value == "" {
		clog().Warn().Msg("BACKEND_API_URL environment variable not set")
	}
	return value
}

// GetBackendForceWSProtocol returns "ws", "wss" or "" when the scheme should
// follow the API URL
func GetBackendForceWSProtocol() string {
	value := strings.ToLower(strings.TrimSuffix(GetEnvOrDefault("BACKEND_FORCE_WS_PROTOCOL", ""), ":"))
	switch value {
	case "", "ws", "wss":
		return value
	default:
		clog().Warn().Str("value", value).Msg("Ignoring unknown BACKEND_FORCE_WS_PROTOCOL")
		return ""
	}
}

// GetBackendAskPath returns the path of the backend's streaming ask socket
func GetBackendAskPath() string {
	return GetEnvOrDefault("BACKEND_ASK_PATH", "/ws/ask")
}

// GetDeltaSource returns which upstream produces answer deltas
func GetDeltaSource() string {
	value := strings.ToLower(GetEnvOrDefault("DELTA_SOURCE", SourceBackend))
	if value != SourceBackend && value != SourceOpenAI {
		clog().Warn().Str("value", value).Msg("Unknown DELTA_SOURCE, using backend")
		return SourceBackend
	}
	return value
}
