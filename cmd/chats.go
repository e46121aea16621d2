package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List the current user's conversations",
	Args:  cobra.NoArgs,
	RunE:  runChats,
}

func init() {
	rootCmd.AddCommand(chatsCmd)
}

func runChats(_ *cobra.Command, _ []string) error {
	_, sessions, db, err := openLocal()
	if err != nil {
		return err
	}

	user := sessions.CurrentUser()
	if user == nil {
		return errors.New("not signed in; run 'nebula login' first")
	}

	conversations := db.ConversationsByUser(user.ID)
	if len(conversations) == 0 {
		fmt.Println("No conversations yet. Run 'nebula' to start one.")
		return nil
	}

	// Newest first, matching the order chat resumes them in.
	for _, conv := range conversations {
		messages := db.MessagesByConversation(conv.ID)
		fmt.Printf("%s  %-20s  %d messages  %s\n",
			conv.ID, conv.Title, len(messages), conv.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
