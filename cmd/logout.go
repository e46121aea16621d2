package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and wipe local chat data",
	Long: `Sign out of the current session.

Logout wipes the local conversation and message collections along with
the session, leaving the next sign-in with a clean slate. The account
registry is kept.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(_ *cobra.Command, _ []string) error {
	_, sessions, db, err := openLocal()
	if err != nil {
		return err
	}

	if sessions.CurrentUser() == nil {
		fmt.Println("Not signed in.")
		return nil
	}

	if err := sessions.SignOut(); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	if err := db.Wipe(); err != nil {
		return fmt.Errorf("wiping chat data: %w", err)
	}

	fmt.Println("Signed out.")
	return nil
}
