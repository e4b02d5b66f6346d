package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bitechdev/JobFeed/pkg/auth"
)

var (
	loginEmail         string
	loginPassword      string
	loginPasswordStdin bool
	registerName       string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password and store the tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if err := app.Auth.Login(cmd.Context(), loginEmail, password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", strings.TrimSpace(loginEmail))
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and store its tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		err = app.Auth.Register(cmd.Context(), auth.Registration{
			Email:    loginEmail,
			Password: password,
			Name:     registerName,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", strings.TrimSpace(loginEmail))
		return nil
	},
}

// readPassword returns --password, or the first line of stdin with --password-stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	if !loginPasswordStdin {
		return loginPassword, nil
	}
	if loginPassword != "" {
		return "", errors.New("--password and --password-stdin are mutually exclusive")
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&loginEmail, "email", "", "account email")
		c.Flags().StringVar(&loginPassword, "password", "", "account password")
		c.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from stdin")
		_ = c.MarkFlagRequired("email")
	}
	registerCmd.Flags().StringVar(&registerName, "name", "", "display name")
	_ = registerCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(loginCmd, registerCmd)
}
