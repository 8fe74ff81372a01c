package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/studylog/internal/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in to keep a per-user data partition",
}

var authSignInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with an OAuth ID token, or with explicit user fields and a token",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		ctx := cmd.Context()
		idToken, _ := cmd.Flags().GetString("id-token")

		var user *auth.User
		if idToken != "" {
			u, err := e.auth.SignInWithIDToken(ctx, idToken)
			if err != nil {
				return err
			}
			user = u
		} else {
			id, _ := cmd.Flags().GetString("id")
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			token, _ := cmd.Flags().GetString("token")
			u := auth.User{ID: id, Email: email, Name: name}
			if err := e.auth.SignIn(ctx, u, token); err != nil {
				return err
			}
			user = &u
		}

		if err := e.study.SetUser(ctx, user); err != nil {
			return fmt.Errorf("load partition: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.Email)
		return nil
	}),
}

var authSignOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and return to the guest partition",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		return e.auth.SignOut(cmd.Context())
	}),
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the signed-in user",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		out := cmd.OutOrStdout()
		u := e.study.User()
		if u == nil {
			fmt.Fprintln(out, "Not signed in; using the guest partition.")
			return nil
		}
		fmt.Fprintf(out, "%s <%s>\n", u.Name, u.Email)
		if u.LastSyncedAt != nil {
			fmt.Fprintf(out, "Last synced %s\n", u.LastSyncedAt.Local().Format(time.DateTime))
		}
		return nil
	}),
}

var authSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Record a sync time for the signed-in user",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		u, err := e.auth.Sync(cmd.Context())
		if errors.Is(err, auth.ErrNotSignedIn) {
			return fmt.Errorf("sign in first: %w", err)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced at %s\n", u.LastSyncedAt.Local().Format(time.DateTime))
		return nil
	}),
}

func init() {
	authSignInCmd.Flags().String("id-token", "", "OAuth ID token carrying sub and email claims")
	authSignInCmd.Flags().String("id", "", "User id")
	authSignInCmd.Flags().String("email", "", "User email")
	authSignInCmd.Flags().String("name", "", "Display name")
	authSignInCmd.Flags().String("token", "", "Auth token")
	authSignInCmd.MarkFlagsMutuallyExclusive("id-token", "id")
	authSignInCmd.MarkFlagsMutuallyExclusive("id-token", "token")

	authCmd.AddCommand(authSignInCmd, authSignOutCmd, authStatusCmd, authSyncCmd)
}
