package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/greater-social/greater/internal/core"
)

var authScope string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the access token stored for the instance",
}

var authSetTokenCmd = &cobra.Command{
	Use:   "set-token [token]",
	Short: "Store an access token (reads stdin when no argument is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 1 {
			token = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read token: %w", err)
			}
			token = line
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return errors.New("token is empty")
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		if err := s.db.SetToken(cmd.Context(), core.Token{
			Instance:    s.client.Instance,
			AccessToken: token,
			TokenType:   "Bearer",
			Scope:       authScope,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}

		account, err := s.client.VerifyCredentials(cmd.Context())
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Token stored, but verification failed: %v\n", err)
			return nil
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as @%s\n", s.client.Instance, account.Acct)
		return err
	},
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Forget the stored token and cached responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		if err := s.db.DeleteToken(cmd.Context(), s.client.Instance); err != nil {
			return err
		}
		s.client.ClearCache()
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed token for %s\n", s.client.Instance)
		return err
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the account the stored token belongs to",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		account, err := s.client.VerifyCredentials(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "@%s (%s) on %s\n", account.Acct, account.DisplayName, s.client.Instance)
		return err
	},
}

func init() {
	authSetTokenCmd.Flags().StringVar(&authScope, "scope", "read write", "scopes granted to the token")

	authCmd.AddCommand(authSetTokenCmd, authRemoveCmd, authWhoamiCmd)
	rootCmd.AddCommand(authCmd)
}
