package models

// EventType classifies what an upstream source produced
type EventType string

const (
	// EventDelta carries the next fragment of the answer text
	EventDelta EventType = "delta"
	// EventStatus is a progress notice that is not part of the answer
	EventStatus EventType = "status"
	// EventFinished marks the end of the answer
	EventFinished EventType = "finished"
)

// Event is a single item produced by an upstream source
type Event struct {
	Type EventType
	Text string
}

func Delta(text string) Event {
	return Event{Type: EventDelta, Text: text}
}

func Status(message string) Event {
	return Event{Type: EventStatus, Text: message}
}

func Finished(message string) Event {
	return Event{Type: EventFinished, Text: message}
}
