package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nebulachat/nebula/internal/auth"
)

var signupCmd = &cobra.Command{
	Use:   "signup <email> <password>",
	Short: "Create an account",
	Long: `Create an account in the local user registry and sign in as it.`,
	Args: cobra.ExactArgs(2),
	RunE: runSignup,
}

func init() {
	rootCmd.AddCommand(signupCmd)
}

func runSignup(_ *cobra.Command, args []string) error {
	_, sessions, _, err := openLocal()
	if err != nil {
		return err
	}

	user, _, err := sessions.SignUp(args[0], args[1])
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			return fmt.Errorf("an account with email %q already exists", args[0])
		case errors.Is(err, auth.ErrValidation):
			return err
		default:
			return fmt.Errorf("signing up: %w", err)
		}
	}

	fmt.Printf("Account created for %s (id %s)\n", user.Email, user.ID)
	fmt.Println("You are now signed in. Run 'nebula' to start chatting.")
	return nil
}
