package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// StepPrinterFunc returns a watermill handler that renders a stream of chat
// events to w as plain text. Deltas are printed as they arrive; the final
// event closes the line and prints the exchange cost when known.
func StepPrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	isFirst := true

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch p_ := e.(type) {
		case *EventError:
			_, err = fmt.Fprintf(w, "\nerror: %s\n", p_.ErrorString)
			if err != nil {
				return err
			}

		case *EventPartialCompletion:
			if isFirst && name != "" {
				isFirst = false
				_, err = fmt.Fprintf(w, "\n%s: \n", name)
				if err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(w, "%s", p_.Delta)
			if err != nil {
				return err
			}

		case *EventFinal:
			isFirst = true
			if !strings.HasSuffix(p_.Text, "\n") {
				_, err = fmt.Fprintf(w, "\n")
				if err != nil {
					return err
				}
			}
			meta := p_.Metadata()
			if meta.Usage != nil {
				_, err = fmt.Fprintf(w, "[%d prompt / %d completion tokens", meta.Usage.PromptTokens, meta.Usage.CompletionTokens)
				if err != nil {
					return err
				}
				if meta.Cost != nil {
					_, err = fmt.Fprintf(w, ", $%.6f", meta.Cost.USD)
					if err != nil {
						return err
					}
				}
				_, err = fmt.Fprintf(w, "]\n")
				if err != nil {
					return err
				}
			}

		case *EventVersionSwitched:
			_, err = fmt.Fprintf(w, "\n[version %d/%d]\n", p_.CurrentVersion, p_.TotalVersions)
			if err != nil {
				return err
			}

		case *EventConversationCreated:
			_, err = fmt.Fprintf(w, "\n[conversation %s: %s]\n", p_.ConversationID, p_.Title)
			if err != nil {
				return err
			}

		case *EventStreamStart,
			*EventInterrupt,
			*EventMessageEdited:

		}

		return nil
	}
}
