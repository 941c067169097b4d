package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kbconsole/answerrelay/internal/config"
	"github.com/kbconsole/answerrelay/internal/domain/answer/models"
	"github.com/kbconsole/answerrelay/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

const systemPrompt = `You answer questions for a knowledge-base console.
Answer in the language of the question.
Format answers as HTML fragments without <html> or <body> wrappers.
Present tabular data as <table> elements with one <tr> per row.`

// Service streams answers from an OpenAI chat completion
type Service struct {
	client *openai.Client
	model  string
}

// NewService returns nil when OPENAI_KEY is not set
func NewService() *Service {
	clog := logger.Component(logger.OPENAI)
	key := config.GetOpenAIKey()
	if key == "" {
		clog.Warn().Msg("OpenAI service not configured - OPENAI_KEY missing")
		return nil
	}

	return NewServiceWithClient(openai.NewClient(key), config.GetOpenAIModel())
}

func NewServiceWithClient(client *openai.Client, model string) *Service {
	return &Service{
		client: client,
		model:  model,
	}
}

// Stream sends the question as a streaming completion and emits each content
// chunk as a delta, followed by a finished event.
func (s *Service) Stream(ctx context.Context, q models.Question, emit func(models.Event)) error {
	clog := logger.Component(logger.OPENAI)
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: q.Text},
		},
		User:   q.SessionID,
		Stream: true,
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		clog.Error().Err(err).Str("model", s.model).Msg("Failed to open completion stream")
		return fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			emit(models.Finished(""))
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read completion stream: %w", err)
		}

		for _, choice := range resp.Choices {
			if choice.Index == 0 && choice.Delta.Content != "" {
				emit(models.Delta(choice.Delta.Content))
			}
		}
	}
}
