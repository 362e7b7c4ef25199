package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hola0123/z-study-chat/pkg/transcript"
)

func newHistoryCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Dump the transcript of a conversation as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), args[0], all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Fetch every page, not just the newest one")
	return cmd
}

func runHistory(ctx context.Context, conversationID string, all bool) error {
	reducer := transcript.NewReducer(newClient())

	if err := reducer.LoadConversation(ctx, conversationID); err != nil {
		return err
	}
	for all && reducer.HasMore() {
		if err := reducer.LoadOlder(ctx); err != nil {
			return err
		}
	}

	return yaml.NewEncoder(os.Stdout).Encode(reducer.Turns())
}

func newConversationsCommand() *cobra.Command {
	var page int
	var limit int

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().GetConversations(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			for _, c := range resp.Conversations {
				fmt.Printf("%s  %s\n", c.ConversationID, c.Title)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page to fetch")
	cmd.Flags().IntVar(&limit, "limit", 20, "Conversations per page")
	return cmd
}
