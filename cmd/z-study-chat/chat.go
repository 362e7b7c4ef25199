package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hola0123/z-study-chat/pkg/api"
	"github.com/hola0123/z-study-chat/pkg/chat"
	"github.com/hola0123/z-study-chat/pkg/events"
	"github.com/hola0123/z-study-chat/pkg/helpers"
	"github.com/hola0123/z-study-chat/pkg/transcript"
)

const chatTopic = "chat"

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Interactive chat session, optionally resuming a conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conversationID := ""
			if len(args) > 0 {
				conversationID = args[0]
			}
			return runChat(cmd.Context(), conversationID)
		},
	}
	return cmd
}

func runChat(ctx context.Context, conversationID string) error {
	router, err := events.NewEventRouter()
	if err != nil {
		return errors.Wrap(err, "could not create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	router.AddHandler("chat-printer", chatTopic, events.StepPrinterFunc("assistant", os.Stdout))

	sessionCtx := helpers.ContextWithCorrelationID(ctx, shortuuid.New())
	publisher := helpers.CorrelationPublisherDecorator{Publisher: router.Publisher}
	sink := events.NewWatermillSink(publisher, chatTopic, events.WithMessageContext(sessionCtx))
	reducer := transcript.NewReducer(newClient(),
		transcript.WithModel(viper.GetString("model")),
		transcript.WithSinks(sink),
		transcript.WithReducerLogger(log.Logger),
		transcript.WithOnConversationCreated(func(conversationID string, title string) {
			log.Info().Str("conversation_id", conversationID).Str("title", title).Msg("conversation created")
		}),
	)
	navigator := transcript.NewNavigator(newClient())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(groupCtx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()

		if conversationID != "" {
			if err := reducer.LoadConversation(groupCtx, conversationID); err != nil {
				return err
			}
			printTranscript(reducer)
		}

		return repl(groupCtx, reducer, navigator)
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func repl(ctx context.Context, reducer *transcript.Reducer, navigator *transcript.Navigator) error {
	fmt.Println("Type a message, or /help for commands.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := reducer.Send(ctx, line); err != nil {
				printCommandError(err)
			}
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/help":
			printHelp()
		case "/quit", "/exit":
			return nil
		case "/show":
			printTranscript(reducer)
		case "/older":
			if err := reducer.LoadOlder(ctx); err != nil {
				printCommandError(err)
				continue
			}
			printTranscript(reducer)
		case "/edit":
			index, rest, err := indexAndText(fields)
			if err != nil {
				printCommandError(err)
				continue
			}
			if err := reducer.EditAndComplete(ctx, index, rest); err != nil {
				printCommandError(err)
				continue
			}
			invalidateVersions(reducer, navigator, index)
		case "/regen":
			index, err := indexArg(fields)
			if err != nil {
				printCommandError(err)
				continue
			}
			if err := reducer.Regenerate(ctx, index); err != nil {
				printCommandError(err)
				continue
			}
			invalidateVersions(reducer, navigator, index)
		case "/prev", "/next":
			index, err := indexArg(fields)
			if err != nil {
				printCommandError(err)
				continue
			}
			direction := strings.TrimPrefix(fields[0], "/")
			if err := reducer.SwitchVersion(ctx, index, direction, 0); err != nil {
				printCommandError(err)
			}
		case "/versions":
			index, err := indexArg(fields)
			if err != nil {
				printCommandError(err)
				continue
			}
			printVersions(ctx, reducer, navigator, index)
		default:
			fmt.Printf("unknown command %s\n", fields[0])
		}
	}
}

func printHelp() {
	fmt.Println(`/show             print the transcript
/older            load older history
/edit N TEXT      edit user turn N and regenerate the reply
/regen N          regenerate assistant turn N
/prev N, /next N  switch the version of turn N
/versions N       list all versions of turn N
/quit             leave`)
}

func printTranscript(reducer *transcript.Reducer) {
	for _, t := range reducer.Turns() {
		marker := ""
		if t.HasMultipleVersions {
			marker = fmt.Sprintf(" (v%d/%d)", chat.ResolveVersionNumber(t), t.TotalVersions)
		}
		fmt.Printf("[%d] %s%s: %s\n", t.Index, t.Role, marker, t.Content)
	}
}

// invalidateVersions drops the cached version list of the turn at index. An
// edit or regenerate just created a new version there, so the next /versions
// has to refetch.
func invalidateVersions(reducer *transcript.Reducer, navigator *transcript.Navigator, index int) {
	turns := reducer.Turns()
	if index < 0 || index >= len(turns) {
		return
	}
	navigator.Invalidate(turns[index].ChatID)
}

func printVersions(ctx context.Context, reducer *transcript.Reducer, navigator *transcript.Navigator, index int) {
	turns := reducer.Turns()
	if index < 0 || index >= len(turns) {
		fmt.Printf("no turn at index %d\n", index)
		return
	}
	versions, err := navigator.Versions(ctx, turns[index])
	if err != nil {
		printCommandError(err)
		return
	}
	for _, v := range versions {
		current := " "
		if v.IsCurrentVersion {
			current = "*"
		}
		fmt.Printf("%s v%d (%d words): %s\n", current, v.VersionNumber, v.WordCount, v.ContentPreview)
	}
}

func printCommandError(err error) {
	switch {
	case api.IsInsufficientBalance(err):
		fmt.Println("Insufficient balance. Please top up to continue.")
	case api.IsNetworkError(err):
		fmt.Println("Network error, check your connection and try again.")
	default:
		fmt.Printf("error: %v\n", err)
	}
}

func indexArg(fields []string) (int, error) {
	if len(fields) < 2 {
		return 0, errors.Errorf("%s needs a turn index", fields[0])
	}
	index, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid turn index %q", fields[1])
	}
	return index, nil
}

func indexAndText(fields []string) (int, string, error) {
	index, err := indexArg(fields)
	if err != nil {
		return 0, "", err
	}
	if len(fields) < 3 {
		return 0, "", errors.Errorf("%s needs replacement text", fields[0])
	}
	return index, strings.Join(fields[2:], " "), nil
}
