package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kbconsole/answerrelay/internal/domain/answer/models"
	"github.com/kbconsole/answerrelay/internal/services/turns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource plays a fixed list of events per question text.
type scriptedSource struct {
	events  map[string][]models.Event
	block   map[string]bool
	err     error
	started chan string
}

func (s *scriptedSource) Stream(ctx context.Context, q models.Question, emit func(models.Event)) error {
	for _, e := range s.events[q.Text] {
		emit(e)
	}
	if s.started != nil {
		s.started <- q.Text
	}
	if s.block[q.Text] {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []string
	statuses  []string
	finished  []string
	failOn    string
}

func (s *recordingSink) Snapshot(_ string, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "snapshot" {
		return errors.New("client gone")
	}
	s.snapshots = append(s.snapshots, html)
	return nil
}

func (s *recordingSink) Status(_ string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, message)
	return nil
}

func (s *recordingSink) Finished(_ string, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "finished" {
		return errors.New("client gone")
	}
	s.finished = append(s.finished, html)
	return nil
}

func newTestService(source Source) (*Service, *turns.Service) {
	turnService := turns.NewServiceWithStore(turns.NewMemoryStore(), time.Minute)
	return NewService(source, turnService), turnService
}

func TestAskRevealsRowsAsTheyClose(t *testing.T) {
	source := &scriptedSource{events: map[string][]models.Event{
		"rows": {
			models.Status("fetching"),
			models.Delta("<table><tr><td>1</td></tr>"),
			models.Delta("<tr><td>2</td>"),
			models.Delta("</tr></table>"),
			models.Finished(""),
		},
	}}
	svc, turnService := newTestService(source)
	sink := &recordingSink{}

	turn, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "rows"}, sink)
	require.NoError(t, err)

	full := "<table><tr><td>1</td></tr><tr><td>2</td></tr></table>"
	assert.Equal(t, []string{"<table><tr><td>1</td></tr>", full}, sink.snapshots)
	assert.Equal(t, []string{"fetching"}, sink.statuses)
	assert.Equal(t, []string{full}, sink.finished)

	cached, err := turnService.Get(context.Background(), turn.ID)
	require.NoError(t, err)
	assert.Equal(t, "finished", cached.State)
	assert.Equal(t, full, cached.Safe)
	assert.NotNil(t, cached.Finished)
	assert.Equal(t, 0, svc.Active())
}

func TestAskRevealsEverythingWhenSourceCloses(t *testing.T) {
	source := &scriptedSource{events: map[string][]models.Event{
		"cut": {models.Delta("<table><tr><td>x")},
	}}
	svc, _ := newTestService(source)
	sink := &recordingSink{}

	_, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "cut"}, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"<table>"}, sink.snapshots)
	assert.Equal(t, []string{"<table><tr><td>x"}, sink.finished)
}

func TestAskSourceFailure(t *testing.T) {
	source := &scriptedSource{
		events: map[string][]models.Event{"q": {models.Delta("partial <table><tr>")}},
		err:    errors.New("socket reset"),
	}
	svc, _ := newTestService(source)
	sink := &recordingSink{}

	turn, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "q"}, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket reset")
	assert.Equal(t, []string{"partial <table><tr>"}, sink.finished)
	assert.Equal(t, "finished", turn.State)
}

func TestAskSupersededByNewQuestion(t *testing.T) {
	source := &scriptedSource{
		events: map[string][]models.Event{
			"first":  {models.Delta("old answer")},
			"second": {models.Delta("new answer"), models.Finished("")},
		},
		block:   map[string]bool{"first": true},
		started: make(chan string, 2),
	}
	svc, turnService := newTestService(source)

	firstSink := &recordingSink{}
	type result struct {
		turn *turns.Turn
		err  error
	}
	firstDone := make(chan result, 1)
	go func() {
		turn, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "first"}, firstSink)
		firstDone <- result{turn, err}
	}()

	require.Equal(t, "first", <-source.started)
	assert.Equal(t, 1, svc.Active())

	secondSink := &recordingSink{}
	_, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "second"}, secondSink)
	require.NoError(t, err)

	var first result
	select {
	case first = <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn was not superseded")
	}
	assert.ErrorIs(t, first.err, ErrSuperseded)

	firstSink.mu.Lock()
	assert.Equal(t, []string{"old answer"}, firstSink.snapshots)
	assert.Empty(t, firstSink.finished)
	firstSink.mu.Unlock()

	assert.Equal(t, []string{"new answer"}, secondSink.finished)

	cached, err := turnService.Get(context.Background(), first.turn.ID)
	require.NoError(t, err)
	assert.Equal(t, "superseded", cached.State)
}

func TestAskOtherSessionsAreIndependent(t *testing.T) {
	source := &scriptedSource{
		events:  map[string][]models.Event{"a": {models.Delta("a")}, "b": {models.Delta("b"), models.Finished("")}},
		block:   map[string]bool{"a": true},
		started: make(chan string, 2),
	}
	svc, _ := newTestService(source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Ask(ctx, models.Question{SessionID: "one", Text: "a"}, &recordingSink{})
		done <- err
	}()
	<-source.started

	_, err := svc.Ask(context.Background(), models.Question{SessionID: "two", Text: "b"}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Active(), "turn of another session must keep running")

	cancel()
	err = <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAskCancel(t *testing.T) {
	source := &scriptedSource{
		events:  map[string][]models.Event{"q": {models.Delta("text")}},
		block:   map[string]bool{"q": true},
		started: make(chan string, 1),
	}
	svc, _ := newTestService(source)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "q"}, &recordingSink{})
		done <- err
	}()
	<-source.started

	svc.Cancel("s")
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, 0, svc.Active())
}

func TestAskSinkFailureStopsTurn(t *testing.T) {
	source := &scriptedSource{
		events: map[string][]models.Event{"q": {models.Delta("one"), models.Delta(" two")}},
		block:  map[string]bool{"q": true},
	}
	svc, turnService := newTestService(source)
	sink := &recordingSink{failOn: "snapshot"}

	turn, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "q"}, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client gone")
	assert.Empty(t, sink.finished)

	cached, err := turnService.Get(context.Background(), turn.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", cached.Accumulated, "deltas after the failure are dropped")
}

func TestAskWithoutSource(t *testing.T) {
	svc := NewService(nil, nil)
	_, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "q"}, &recordingSink{})
	assert.ErrorIs(t, err, ErrNoSource)
}

// countingStore counts writes on top of a memory store.
type countingStore struct {
	*turns.MemoryStore
	mu   sync.Mutex
	sets int
}

func (c *countingStore) Set(ctx context.Context, turn *turns.Turn, ttl time.Duration) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.MemoryStore.Set(ctx, turn, ttl)
}

func TestAskCheckpointInterval(t *testing.T) {
	var deltas []models.Event
	for _, word := range []string{"one ", "two ", "three ", "four ", "five "} {
		deltas = append(deltas, models.Delta(word))
	}
	deltas = append(deltas, models.Finished(""))

	tests := []struct {
		name     string
		interval time.Duration
		wantSets int
	}{
		// start + one per changed snapshot + finish
		{"every snapshot", 0, 7},
		// start + finish
		{"long interval", time.Hour, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &countingStore{MemoryStore: turns.NewMemoryStore()}
			turnService := turns.NewServiceWithStore(store, time.Minute)
			svc := NewService(&scriptedSource{events: map[string][]models.Event{"q": deltas}}, turnService)
			svc.SetCheckpointInterval(tt.interval)
			sink := &recordingSink{}

			turn, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "q"}, sink)
			require.NoError(t, err)

			assert.Len(t, sink.snapshots, 5, "clients still see every snapshot")
			assert.Equal(t, tt.wantSets, store.sets)

			cached, err := turnService.Get(context.Background(), turn.ID)
			require.NoError(t, err)
			assert.Equal(t, "one two three four five ", cached.Safe)
			assert.Equal(t, "finished", cached.State)
		})
	}
}

func TestAskSupersededKeepsLastSnapshot(t *testing.T) {
	source := &scriptedSource{
		events: map[string][]models.Event{
			"first":  {models.Delta("shown <table><tr><td>hidden")},
			"second": {models.Finished("")},
		},
		block:   map[string]bool{"first": true},
		started: make(chan string, 2),
	}
	svc, turnService := newTestService(source)
	svc.SetCheckpointInterval(time.Hour)

	done := make(chan *turns.Turn, 1)
	go func() {
		turn, _ := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "first"}, &recordingSink{})
		done <- turn
	}()
	<-source.started

	_, err := svc.Ask(context.Background(), models.Question{SessionID: "s", Text: "second"}, &recordingSink{})
	require.NoError(t, err)
	first := <-done

	cached, err := turnService.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "superseded", cached.State)
	assert.Equal(t, "shown <table>", cached.Safe)
	assert.Nil(t, cached.Finished)
}
