package config

// GetOpenAIKey returns the current OpenAI key
func GetOpenAIKey() string {
	value := GetEnvOrDefault("OPENAI_KEY", "")
	if value == "" {
		clog().Warn().Msg("OPENAI_KEY environment variable not set")
	}
	return value
}

// GetOpenAIModel returns the model used by the OpenAI delta source
func GetOpenAIModel() string {
	return GetEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini")
}
