package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kbconsole/answerrelay/internal/config"
	"github.com/kbconsole/answerrelay/internal/domain/answer/models"
	"github.com/kbconsole/answerrelay/pkg/logger"
)

// ErrNotConfigured is returned when BACKEND_API_URL is missing or unusable
var ErrNotConfigured = errors.New("backend API URL not configured")

const (
	eventFinished     = "finished"
	eventFetchingData = "fetching data"

	closeWait = time.Second
)

// Service streams answers from the knowledge-base backend's ask socket
type Service struct {
	apiURL        *url.URL
	forceProtocol string
	askPath       string
	dialer        *websocket.Dialer
}

// frame is the JSON control message the backend interleaves with raw deltas
type frame struct {
	Event   string `json:"event"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

func NewService() (*Service, error) {
	return NewServiceWithOptions(
		config.GetBackendAPIURL(),
		config.GetBackendForceWSProtocol(),
		config.GetBackendAskPath(),
	)
}

func NewServiceWithOptions(apiURL, forceProtocol, askPath string) (*Service, error) {
	if apiURL == "" {
		return nil, ErrNotConfigured
	}

	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrNotConfigured, apiURL)
	}

	if !strings.HasPrefix(askPath, "/") {
		askPath = "/" + askPath
	}

	return &Service{
		apiURL:        u,
		forceProtocol: forceProtocol,
		askPath:       askPath,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// AskURL returns the socket URL for a session. The scheme follows the API URL
// (https means wss) unless a protocol is forced.
func (s *Service) AskURL(sessionID string) string {
	scheme := s.forceProtocol
	if scheme == "" {
		scheme = "ws"
		if s.apiURL.Scheme == "https" || s.apiURL.Scheme == "wss" {
			scheme = "wss"
		}
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     s.apiURL.Host,
		Path:     s.askPath,
		RawQuery: url.Values{"session_id": {sessionID}}.Encode(),
	}
	return u.String()
}

// Stream asks the backend a question and emits its answer as events. It
// returns nil once the backend sends a finished frame or closes the socket;
// cancelling ctx closes the socket and returns the context's error.
func (s *Service) Stream(ctx context.Context, q models.Question, emit func(models.Event)) error {
	clog := logger.Component(logger.BACKEND)
	target := s.AskURL(q.SessionID)

	conn, resp, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			clog.Error().Err(err).Int("status", resp.StatusCode).Str("url", target).Msg("Backend refused ask socket")
		} else {
			clog.Error().Err(err).Str("url", target).Msg("Failed to connect to backend ask socket")
		}
		return fmt.Errorf("failed to dial backend: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"),
				time.Now().Add(closeWait))
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(q); err != nil {
		return fmt.Errorf("failed to send question: %w", err)
	}

	clog.Debug().Str("session_id", q.SessionID).Str("url", target).Msg("Question sent to backend")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				clog.Debug().Str("session_id", q.SessionID).Msg("Backend closed ask socket")
				return nil
			}
			return fmt.Errorf("failed to read from backend: %w", err)
		}

		event := classify(msg)
		if clog.Trace().Enabled() {
			clog.Trace().Str("type", string(event.Type)).Str("text", event.Text).Msg("Backend frame")
		}
		emit(event)

		if event.Type == models.EventFinished {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeWait))
			return nil
		}
	}
}

// classify separates control frames from answer text. Anything that is not a
// JSON object with a known event is answer text, verbatim.
func classify(msg []byte) models.Event {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var f frame
		if err := json.Unmarshal(trimmed, &f); err == nil {
			switch f.Event {
			case eventFinished:
				return models.Finished(f.Msg)
			case eventFetchingData:
				return models.Status(f.Message)
			}
		}
	}
	return models.Delta(string(msg))
}
