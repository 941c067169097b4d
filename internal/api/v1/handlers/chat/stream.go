package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/kbconsole/answerrelay/internal/domain/answer/models"
	"github.com/kbconsole/answerrelay/internal/services/relay"
	"github.com/kbconsole/answerrelay/pkg/httpext"
	"github.com/kbconsole/answerrelay/pkg/logger"
	"github.com/tmaxmax/go-sse"
)

// use a single instance of Validate, it caches struct info
var validate = validator.New(validator.WithRequiredStructEnabled())

var (
	snapshotSSEType = sse.Type(models.FrameSnapshot)
	statusSSEType   = sse.Type(models.FrameStatus)
	finishedSSEType = sse.Type(models.FrameFinished)
	errorSSEType    = sse.Type(models.FrameError)
)

// sessionSink sends each frame as one SSE message and flushes it right away.
type sessionSink struct {
	session *sse.Session
}

func (s *sessionSink) send(typ sse.EventType, frame models.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	msg := &sse.Message{Type: typ}
	msg.AppendData(string(data))

	if err := s.session.Send(msg); err != nil {
		return err
	}
	return s.session.Flush()
}

func (s *sessionSink) Snapshot(turnID, html string) error {
	return s.send(snapshotSSEType, models.Frame{Event: models.FrameSnapshot, TurnID: turnID, HTML: html})
}

func (s *sessionSink) Status(turnID, message string) error {
	return s.send(statusSSEType, models.Frame{Event: models.FrameStatus, TurnID: turnID, Message: message})
}

func (s *sessionSink) Finished(turnID, html string) error {
	return s.send(finishedSSEType, models.Frame{Event: models.FrameFinished, TurnID: turnID, HTML: html})
}

func (s *sessionSink) Error(message string) error {
	return s.send(errorSSEType, models.Frame{Event: models.FrameError, Message: message})
}

// HandleAskStream answers one question as a Server-Sent Events stream of
// snapshot, status and finished events.
func HandleAskStream(relayService *relay.Service, w http.ResponseWriter, r *http.Request) {
	clog := logger.Component(logger.HANDLER)
	var q models.Question

	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		clog.Warn().Err(err).Msg("Client sent malformed JSON request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(q); err != nil {
		clog.Warn().Err(err).Msg("Request validation failed")
		httpext.JsonError(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if !relayService.Ready() {
		clog.Error().Msg("Ask stream requested without a delta source")
		httpext.JsonError(w, "Answer source unavailable", http.StatusServiceUnavailable)
		return
	}

	session, err := sse.Upgrade(w, r)
	if err != nil {
		clog.Error().Err(err).Msg("Failed to upgrade ask stream")
		httpext.JsonError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sink := &sessionSink{session: session}

	_, err = relayService.Ask(r.Context(), q, sink)
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrSuperseded):
		_ = sink.Error("Superseded by a newer question")
	case errors.Is(err, context.Canceled):
		clog.Debug().Str("session_id", q.SessionID).Msg("Client left ask stream")
	default:
		clog.Error().Err(err).Str("session_id", q.SessionID).Msg("Ask stream failed")
		_ = sink.Error("Failed to stream answer")
	}
}
