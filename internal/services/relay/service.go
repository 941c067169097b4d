package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kbconsole/answerrelay/internal/domain/answer/models"
	"github.com/kbconsole/answerrelay/internal/services/turns"
	"github.com/kbconsole/answerrelay/pkg/htmlstream"
	applog "github.com/kbconsole/answerrelay/pkg/logger"
	"github.com/rs/zerolog/log"
)

const stateSuperseded = "superseded"

// DefaultCheckpointInterval bounds how often an in-flight turn is written to
// the snapshot cache.
const DefaultCheckpointInterval = 250 * time.Millisecond

var (
	// ErrSuperseded ends a turn when a newer question arrives for its session
	ErrSuperseded = errors.New("turn superseded by a newer question")
	// ErrNoSource is returned when no upstream is configured
	ErrNoSource = errors.New("no delta source configured")
)

// Source produces the events of one answer. emit is called on the caller's
// goroutine, in arrival order.
type Source interface {
	Stream(ctx context.Context, q models.Question, emit func(models.Event)) error
}

// Sink is the render side of a turn. A failing sink aborts the turn.
type Sink interface {
	Snapshot(turnID, html string) error
	Status(turnID, message string) error
	Finished(turnID, html string) error
}

type inflight struct {
	turnID string
	cancel context.CancelCauseFunc
}

// Service runs turns: one question, one source stream, one reassembler
type Service struct {
	source     Source
	turns      *turns.Service
	checkpoint time.Duration

	mu       sync.Mutex
	inflight map[string]inflight // by session ID
}

func NewService(source Source, turnService *turns.Service) *Service {
	return &Service{
		source:     source,
		turns:      turnService,
		checkpoint: DefaultCheckpointInterval,
		inflight:   make(map[string]inflight),
	}
}

// SetCheckpointInterval changes how often in-flight snapshots are cached.
// Zero caches every changed snapshot. Final states are always cached.
func (s *Service) SetCheckpointInterval(d time.Duration) {
	s.checkpoint = d
}

// Ready reports whether a delta source is configured.
func (s *Service) Ready() bool {
	return s.source != nil
}

// Active returns the number of turns currently streaming
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Cancel supersedes the in-flight turn of a session, if any
func (s *Service) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.inflight[sessionID]; ok {
		current.cancel(ErrSuperseded)
		delete(s.inflight, sessionID)
	}
}

func (s *Service) register(sessionID, turnID string, cancel context.CancelCauseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if previous, ok := s.inflight[sessionID]; ok {
		log.Info().Str("component", applog.RELAY).Str("session_id", sessionID).Str("turn_id", previous.turnID).Msg("Superseding in-flight turn")
		previous.cancel(ErrSuperseded)
	}
	s.inflight[sessionID] = inflight{turnID: turnID, cancel: cancel}
}

func (s *Service) unregister(sessionID, turnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.inflight[sessionID]; ok && current.turnID == turnID {
		delete(s.inflight, sessionID)
	}
}

// Ask streams the answer to q into sink and blocks until the turn ends. The
// sink receives a snapshot only when the renderable text changes, and always
// a final Finished with everything received unless the turn was superseded.
func (s *Service) Ask(ctx context.Context, q models.Question, sink Sink) (*turns.Turn, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}

	turnID := uuid.New().String()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.register(q.SessionID, turnID, cancel)
	defer s.unregister(q.SessionID, turnID)

	logger := applog.Component(applog.RELAY).With().Str("turn_id", turnID).Str("session_id", q.SessionID).Logger()
	logger.Info().Int("question_length", len(q.Text)).Msg("Turn started")

	r := htmlstream.New()
	r.Start()

	turn := &turns.Turn{
		ID:        turnID,
		SessionID: q.SessionID,
		Question:  q.Text,
		State:     htmlstream.Streaming.String(),
		Started:   time.Now(),
	}
	s.save(ctx, turn, r)
	lastCheckpoint := time.Now()

	var sinkErr error
	finished := false
	finish := func() error {
		if finished {
			return nil
		}
		finished = true
		html := r.Finish()
		s.save(context.WithoutCancel(ctx), turn, r)
		return sink.Finished(turnID, html)
	}

	emit := func(e models.Event) {
		if ctx.Err() != nil || finished {
			return
		}

		var err error
		switch e.Type {
		case models.EventDelta:
			html, changed := r.Push(e.Text)
			if changed {
				if now := time.Now(); now.Sub(lastCheckpoint) >= s.checkpoint {
					s.save(ctx, turn, r)
					lastCheckpoint = now
				}
				err = sink.Snapshot(turnID, html)
			}
		case models.EventStatus:
			err = sink.Status(turnID, e.Text)
		case models.EventFinished:
			err = finish()
		}

		if err != nil {
			sinkErr = err
			cancel(fmt.Errorf("sink failed: %w", err))
		}
	}

	streamErr := s.source.Stream(ctx, q, emit)

	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrSuperseded):
		turn.Safe = r.Safe()
		turn.Accumulated = r.Accumulated()
		r.Reset()
		turn.State = stateSuperseded
		s.store(context.WithoutCancel(ctx), turn)
		logger.Info().Msg("Turn superseded")
		return turn, ErrSuperseded
	case sinkErr != nil:
		// The render side went away; keep what arrived for lookups.
		if !finished {
			r.Finish()
			s.save(context.WithoutCancel(ctx), turn, r)
		}
		logger.Warn().Err(sinkErr).Msg("Turn aborted by sink")
		return turn, fmt.Errorf("sink failed: %w", sinkErr)
	case ctx.Err() != nil && !finished:
		r.Finish()
		s.save(context.WithoutCancel(ctx), turn, r)
		logger.Warn().Err(cause).Msg("Turn cancelled")
		return turn, cause
	}

	// A source that stops without a finished event still reveals everything.
	if err := finish(); err != nil {
		logger.Warn().Err(err).Msg("Failed to deliver final answer")
		return turn, fmt.Errorf("sink failed: %w", err)
	}

	if streamErr != nil {
		logger.Error().Err(streamErr).Msg("Source failed mid-turn")
		return turn, fmt.Errorf("source failed: %w", streamErr)
	}

	logger.Info().Int("answer_length", len(turn.Accumulated)).Msg("Turn finished")
	return turn, nil
}

func (s *Service) save(ctx context.Context, turn *turns.Turn, r *htmlstream.Reassembler) {
	turn.Safe = r.Safe()
	turn.Accumulated = r.Accumulated()
	turn.State = r.State().String()
	if r.State() == htmlstream.Finished && turn.Finished == nil {
		now := time.Now()
		turn.Finished = &now
	}
	s.store(ctx, turn)
}

func (s *Service) store(ctx context.Context, turn *turns.Turn) {
	if s.turns == nil {
		return
	}
	if err := s.turns.Save(ctx, turn); err != nil {
		log.Warn().Str("component", applog.RELAY).Err(err).Str("turn_id", turn.ID).Msg("Failed to cache turn snapshot")
	}
}
