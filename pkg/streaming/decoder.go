package streaming

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

type EventKind string

const (
	EventKindDelta EventKind = "delta"
	EventKindFinal EventKind = "final"
)

// Event is one decoded stream item. Delta events carry incremental text,
// final events carry the metadata envelope. A single wire record can produce
// both when the backend fuses a delta with metadata blocks.
type Event struct {
	Kind  EventKind
	Text  string
	Final *Final
}

// ParseError marks a wire record that could not be decoded. It is recoverable
// at the decoder boundary: the record is skipped and the stream continues.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse stream record %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	dataPrefix   = []byte("data: ")
	doneSentinel = []byte("[DONE]")
)

// record is the raw wire shape of one data line. The metadata envelope is
// flattened into the same record as the delta choices.
type record struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`

	Final
}

// Decoder turns raw chunks of an SSE completion stream into events. Chunk
// boundaries carry no meaning: a partial trailing line is buffered until the
// rest arrives, so feeding the stream one byte at a time yields the same
// events as feeding it whole.
type Decoder struct {
	buf         []byte
	done        bool
	parseErrors []*ParseError
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode consumes one chunk and returns the events completed by it.
func (d *Decoder) Decode(chunk []byte) []Event {
	if d.done {
		return nil
	}

	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		events = append(events, d.decodeLine(line)...)
		if d.done {
			d.buf = nil
			break
		}
	}

	return events
}

// Finish flushes a trailing line that arrived without a newline. Call it once
// the underlying stream has ended.
func (d *Decoder) Finish() []Event {
	if d.done || len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	return d.decodeLine(line)
}

// Done reports whether the terminating sentinel has been seen. Anything fed
// to the decoder afterwards is ignored.
func (d *Decoder) Done() bool {
	return d.done
}

// ParseErrors returns the records skipped so far.
func (d *Decoder) ParseErrors() []*ParseError {
	return d.parseErrors
}

func (d *Decoder) decodeLine(line []byte) []Event {
	line = bytes.TrimSuffix(line, []byte("\r"))
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	if !bytes.HasPrefix(line, dataPrefix) {
		d.skip(line, fmt.Errorf("no data prefix"))
		return nil
	}
	payload := bytes.TrimPrefix(line, dataPrefix)
	// some backend records arrive with the prefix doubled
	payload = bytes.TrimPrefix(payload, dataPrefix)

	if bytes.Equal(payload, doneSentinel) {
		d.done = true
		return nil
	}

	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		d.skip(line, err)
		return nil
	}

	var events []Event
	for _, choice := range rec.Choices {
		if choice.Delta.Content == "" {
			continue
		}
		events = append(events, Event{Kind: EventKindDelta, Text: choice.Delta.Content})
	}

	if !rec.Final.empty() {
		final := rec.Final
		events = append(events, Event{Kind: EventKindFinal, Final: &final})
	}

	return events
}

func (d *Decoder) skip(line []byte, err error) {
	pe := &ParseError{Line: string(line), Err: err}
	d.parseErrors = append(d.parseErrors, pe)
	log.Debug().Err(err).Str("line", pe.Line).Msg("skipping malformed stream record")
}
