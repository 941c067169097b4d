package models

// Question is one user question bound to a backend chat session
type Question struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
	Text      string `json:"question" validate:"required,max=8000"`
}
