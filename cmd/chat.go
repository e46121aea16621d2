package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nebulachat/nebula/internal/app"
	"github.com/nebulachat/nebula/internal/auth"
	"github.com/nebulachat/nebula/internal/config"
	"github.com/nebulachat/nebula/internal/graph"
	"github.com/nebulachat/nebula/internal/store"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE:  runChat,
}

var chatNew bool

func init() {
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "start a new conversation instead of resuming the latest")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.RequireAPIKey(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "To set your API key:")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Get your API key at: https://ai.google.dev/")
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := initLogger()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close() //nolint:errcheck

	var session *auth.Session
	a.Sessions.OnAuthStateChanged(func(authenticated bool, s *auth.Session) {
		if authenticated {
			session = s
		}
	})
	if session == nil {
		fmt.Fprintln(os.Stderr, "Not signed in. Run 'nebula login' or 'nebula signup' first.")
		return errors.New("no active session")
	}

	client, err := a.Connect()
	if err != nil {
		return err
	}

	conv, err := pickConversation(ctx, client)
	if err != nil {
		return err
	}

	user := a.Sessions.CurrentUser()
	fmt.Printf("Signed in as %s\n", user.Email)
	fmt.Printf("Conversation: %s (%s)\n", conv.Title, conv.ID)
	fmt.Println("Type a message, or Ctrl+D to quit.")
	fmt.Println()

	return chatLoop(ctx, client, conv.ID)
}

// pickConversation resumes the most recent conversation, or creates one
// when none exists or --new was given.
func pickConversation(ctx context.Context, client *graph.Client) (*store.Conversation, error) {
	if !chatNew {
		res, err := client.Query(ctx, graph.OpListConversations, graph.Vars{})
		if err != nil {
			return nil, err
		}
		if len(res.Conversations) > 0 {
			// Conversations are newest first.
			return &res.Conversations[0], nil
		}
	}

	res, err := client.Mutate(ctx, graph.OpCreateConversation, graph.Vars{})
	if err != nil {
		return nil, err
	}
	return res.Conversation, nil
}

func chatLoop(ctx context.Context, client *graph.Client, conversationID string) error {
	// The assistant answers asynchronously; the subscription pushes every
	// change to the conversation, and the loop blocks on replies until the
	// answer for the message it just sent arrives.
	replies := make(chan store.Message, 16)

	var mu sync.Mutex
	printed := make(map[string]bool)

	sub := client.Subscribe(conversationID, func(messages []store.Message) {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range messages {
			if printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			if m.Role == store.RoleAssistant {
				select {
				case replies <- m:
				default:
				}
			}
		}
	})
	defer sub.Unsubscribe()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" || input == "/quit" {
			fmt.Println("Goodbye!")
			break
		}

		_, err := client.Mutate(ctx, graph.OpSendMessage, graph.Vars{
			ConversationID: conversationID,
			Content:        input,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			continue
		}

		select {
		case reply := <-replies:
			fmt.Printf("\nassistant: %s\n\n", reply.Content)
		case <-ctx.Done():
			fmt.Println("\nGoodbye!")
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}
