package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/kbconsole/answerrelay/internal/connections"
	"github.com/kbconsole/answerrelay/internal/domain/answer/models"
	"github.com/kbconsole/answerrelay/internal/services/relay"
	"github.com/kbconsole/answerrelay/pkg/logger"
)

var (
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// socketSink writes turn frames to one render socket. gorilla allows a single
// concurrent writer, so every frame goes through mu.
type socketSink struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	writeWait time.Duration
}

func (s *socketSink) write(frame models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(frame)
}

func (s *socketSink) Snapshot(turnID, html string) error {
	return s.write(models.Frame{Event: models.FrameSnapshot, TurnID: turnID, HTML: html})
}

func (s *socketSink) Status(turnID, message string) error {
	return s.write(models.Frame{Event: models.FrameStatus, TurnID: turnID, Message: message})
}

func (s *socketSink) Finished(turnID, html string) error {
	return s.write(models.Frame{Event: models.FrameFinished, TurnID: turnID, HTML: html})
}

func (s *socketSink) Error(message string) error {
	return s.write(models.Frame{Event: models.FrameError, Message: message})
}

// HandleAskSocket serves render clients over WebSocket. Each text frame is a
// question; a new question cancels the answer still streaming on this socket.
func HandleAskSocket(relayService *relay.Service, manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	clog := logger.Component(logger.HANDLER)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		clog.Warn().Err(err).Str("client_ip", r.RemoteAddr).Msg("Failed to upgrade ask socket")
		return
	}

	timeouts := manager.GetTimeouts()
	manager.AddConnection(conn)

	ctx, cancelAll := context.WithCancel(context.Background())
	var turns sync.WaitGroup
	defer func() {
		cancelAll()
		turns.Wait()
		manager.RemoveConnection(conn)
		conn.Close()
	}()

	sink := &socketSink{conn: conn, writeWait: timeouts.WriteWait}

	conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(timeouts.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	clog.Info().Str("client_ip", r.RemoteAddr).Int("connections", manager.GetConnectionCount()).Msg("Ask socket opened")

	cancelTurn := context.CancelCauseFunc(func(error) {})
	for {
		var q models.Question
		if err := conn.ReadJSON(&q); err != nil {
			if isDecodeError(err) {
				clog.Warn().Err(err).Msg("Client sent malformed question frame")
				if sink.Error("Invalid question format") == nil {
					continue
				}
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				clog.Warn().Err(err).Str("client_ip", r.RemoteAddr).Msg("Ask socket closed unexpectedly")
			} else {
				clog.Info().Str("client_ip", r.RemoteAddr).Msg("Ask socket closed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))

		if err := validate.Struct(q); err != nil {
			clog.Warn().Err(err).Msg("Question validation failed")
			_ = sink.Error("Invalid question: question and session_id are required")
			continue
		}

		cancelTurn(relay.ErrSuperseded)
		turnCtx, cancel := context.WithCancelCause(ctx)
		cancelTurn = cancel
		manager.BindSession(conn, q.SessionID)

		turns.Add(1)
		go func(q models.Question) {
			defer turns.Done()
			defer cancel(nil)

			_, err := relayService.Ask(turnCtx, q, sink)
			switch {
			case err == nil:
			case errors.Is(err, relay.ErrSuperseded), errors.Is(err, context.Canceled):
				clog.Debug().Str("session_id", q.SessionID).Msg("Socket turn replaced")
			default:
				clog.Error().Err(err).Str("session_id", q.SessionID).Msg("Socket turn failed")
				_ = sink.Error("Failed to stream answer")
			}
		}(q)
	}
}
