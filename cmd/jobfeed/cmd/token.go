package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitechdev/JobFeed/pkg/auth"
)

var (
	tokenAccess  string
	tokenRefresh string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage stored credentials",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store an access and refresh token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenAccess == "" {
			return fmt.Errorf("--access is required")
		}
		return app.Tokens.SetTokens(tokenAccess, tokenRefresh)
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored token's claims",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		token := app.Tokens.Token()
		if token == "" {
			fmt.Fprintln(out, "not logged in")
			return nil
		}
		claims, err := auth.DecodeClaims(token)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "subject: %s\nemail:   %s\nrole:    %s\nadmin:   %t\n",
			claims.Subject, claims.Email, claims.Role, claims.IsAdmin())
		if exp := claims.Expiry(); !exp.IsZero() {
			fmt.Fprintf(out, "expires: %s (expired: %t)\n", exp.Format(time.RFC3339), auth.IsExpired(token, time.Now()))
		}
		fmt.Fprintf(out, "refresh: %t\n", app.Tokens.RefreshToken() != "")
		return nil
	},
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the refresh token for a new access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := app.Auth.Refresh(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "token refreshed")
		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Tokens.Clear()
	},
}

func init() {
	tokenSetCmd.Flags().StringVar(&tokenAccess, "access", "", "access token (JWT)")
	tokenSetCmd.Flags().StringVar(&tokenRefresh, "refresh", "", "refresh token")
	tokenCmd.AddCommand(tokenSetCmd, tokenShowCmd, tokenRefreshCmd, tokenClearCmd)
	rootCmd.AddCommand(tokenCmd)
}
