package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLoginCommand creates the login command
func NewLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google in your browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.client.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			if st := a.client.Snapshot(); st.Session != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Already logged in as: %s\n", st.Session.User.Email)
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Opening your browser to sign in with Google...")
			if err := a.client.SignIn(cmd.Context()); err != nil {
				return err
			}

			st := a.client.Snapshot()
			if st.Session == nil {
				return fmt.Errorf("sign-in did not produce a session")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as: %s\n", st.Session.User.Email)
			return nil
		},
	}
}

// NewLogoutCommand creates the logout command
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.client.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			if err := a.client.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
