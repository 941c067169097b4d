// Package htmlstream reassembles streamed HTML answers and decides, after each
// delta, how much of the text can be rendered without exposing a half-streamed
// table row.
package htmlstream

import "strings"

// State is the lifecycle position of the message being assembled.
type State int

const (
	Idle State = iota
	Streaming
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Reassembler accumulates the deltas of a single message.
//
// A Reassembler belongs to one chat turn at a time and is not safe for
// concurrent use. It must not be copied after first use.
type Reassembler struct {
	acc   strings.Builder
	safe  int // length of the renderable prefix of acc
	state State

	insideTable bool
	regionStart int // offset in acc of the first unmatched <table
	settled     int // acc before this offset belongs to fully balanced tables
}

// New returns an idle Reassembler.
func New() *Reassembler {
	return &Reassembler{}
}

// Start begins a new message, discarding everything buffered so far.
func (r *Reassembler) Start() {
	r.acc.Reset()
	r.safe = 0
	r.insideTable = false
	r.regionStart = 0
	r.settled = 0
	r.state = Streaming
}

// Reset drops the current message and begins a fresh one, exactly as Start.
func (r *Reassembler) Reset() {
	r.Start()
}

// Push appends delta and returns the renderable snapshot along with whether it
// changed since the previous call. Empty deltas are ignored. Pushing into an
// idle or finished Reassembler starts a new message first.
func (r *Reassembler) Push(delta string) (string, bool) {
	if delta == "" {
		return r.Safe(), false
	}
	if r.state != Streaming {
		r.Start()
	}

	before := r.safe
	r.acc.WriteString(delta)
	r.evaluate()
	return r.Safe(), r.safe != before
}

// Finish releases everything received, balanced or not, and returns the full
// text. Calling it again returns the same text.
func (r *Reassembler) Finish() string {
	if r.state != Finished {
		r.safe = r.acc.Len()
		r.insideTable = false
		r.regionStart = r.safe
		r.settled = r.safe
		r.state = Finished
	}
	return r.acc.String()
}

// Safe returns the longest prefix of the accumulated text that may be rendered.
func (r *Reassembler) Safe() string {
	return r.acc.String()[:r.safe]
}

// Accumulated returns every byte received for the current message.
func (r *Reassembler) Accumulated() string {
	return r.acc.String()
}

// Pending returns the withheld tail of the accumulated text.
func (r *Reassembler) Pending() string {
	return r.acc.String()[r.safe:]
}

// InsideTable reports whether an unbalanced table is holding back output.
func (r *Reassembler) InsideTable() bool {
	return r.insideTable
}

// State returns the lifecycle state of the current message.
func (r *Reassembler) State() State {
	return r.state
}

// evaluate recomputes the safe prefix from the accumulated text.
func (r *Reassembler) evaluate() {
	acc := r.acc.String()

	if !r.insideTable {
		idx := indexOpenTag(acc[r.settled:], "table")
		if idx < 0 {
			r.safe = len(acc)
			return
		}
		r.insideTable = true
		r.regionStart = r.settled + idx
	}

	region := acc[r.regionStart:]
	tables := scanTags(region, "table")

	// Balanced, or more closes than opens: nothing left worth holding back.
	if tables.closes >= tables.opens && tables.closes > 0 {
		r.settle(len(acc))
		return
	}

	rows := scanTags(region, "tr")
	cut := 0
	switch {
	case rows.unclosed >= 0:
		cut = rows.unclosed
	case rows.lastClose >= 0:
		cut = rows.lastClose
	}
	r.safe = r.regionStart + cut
}

func (r *Reassembler) settle(end int) {
	r.safe = end
	r.settled = end
	r.regionStart = end
	r.insideTable = false
}
