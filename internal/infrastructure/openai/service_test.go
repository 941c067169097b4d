package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kbconsole/answerrelay/internal/domain/answer/models"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{"index": 0, "delta": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewServiceWithClient(openai.NewClientWithConfig(cfg), "gpt-4o-mini")
}

func TestStream(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"<table><tr>", "<td>1</td></tr>", "</table>"} {
			fmt.Fprintf(w, "data: %s\n\n", chunk(part))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var events []models.Event
	err := svc.Stream(context.Background(), models.Question{SessionID: "s-1", Text: "rows?"}, func(e models.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)

	assert.Equal(t, []models.Event{
		models.Delta("<table><tr>"),
		models.Delta("<td>1</td></tr>"),
		models.Delta("</table>"),
		models.Finished(""),
	}, events)

	assert.True(t, gotReq.Stream)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, "s-1", gotReq.User)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "rows?", gotReq.Messages[1].Content)
}

func TestStreamUpstreamError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	var events []models.Event
	err := svc.Stream(context.Background(), models.Question{SessionID: "s", Text: "q"}, func(e models.Event) {
		events = append(events, e)
	})
	assert.Error(t, err)
	assert.Empty(t, events)
}
