// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// reader for consuming streaming completions from OpenAI-compatible
// providers.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities: recall streams to its own clients as NDJSON.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DoneData is the data payload OpenAI-compatible providers send as the final
// event of a stream.
const DoneData = "[DONE]"

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}

// IsDone reports whether the event is the OpenAI end-of-stream sentinel.
func (e *Event) IsDone() bool {
	return e.Data == DoneData
}
