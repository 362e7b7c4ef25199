package streaming

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Handler receives decoded events in stream order. Returning an error aborts
// the read.
type Handler func(Event) error

// ReadStream pulls the body of a completion response through the decoder
// until the sentinel, the end of the body, or cancellation. Cancellation is
// checked before every read, so a canceled context wins over a buffered
// terminal record that has not been handled yet.
//
// The returned Final is the last metadata envelope seen before the stream
// ended; it is nil when the stream carried none.
func ReadStream(ctx context.Context, r io.Reader, h Handler) (*Final, error) {
	d := NewDecoder()
	buf := make([]byte, 4096)

	var final *Final

	handle := func(events []Event) error {
		for _, ev := range events {
			if ev.Kind == EventKindFinal {
				final = ev.Final
			}
			if h != nil {
				if err := h(ev); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			if err_ := handle(d.Decode(buf[:n])); err_ != nil {
				return nil, err_
			}
		}
		if err == io.EOF {
			if err_ := handle(d.Finish()); err_ != nil {
				return nil, err_
			}
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading completion stream")
		}
		if d.Done() {
			break
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return final, nil
}
