package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nebulachat/nebula/internal/auth"
)

var loginCmd = &cobra.Command{
	Use:   "login <email> <password>",
	Short: "Sign in to an existing account",
	Long: `Sign in to an account created with 'nebula signup'.

Accounts must be registered before they can sign in; an unknown email is
reported as such rather than silently creating an account.`,
	Args: cobra.ExactArgs(2),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(_ *cobra.Command, args []string) error {
	_, sessions, _, err := openLocal()
	if err != nil {
		return err
	}

	user, _, err := sessions.SignIn(args[0], args[1])
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountNotFound):
			return fmt.Errorf("no account for %q; run 'nebula signup' first", args[0])
		case errors.Is(err, auth.ErrInvalidCredentials):
			return errors.New("invalid credentials")
		default:
			return fmt.Errorf("signing in: %w", err)
		}
	}

	fmt.Printf("Signed in as %s\n", user.Email)
	return nil
}
