package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/agchavez/interlace/internal/models"
)

// passwordEnv lets scripts sign in without a prompt
const passwordEnv = "CLAIMS_PASSWORD"

var (
	loginUsername string
	loginPassword string
	logoutAll     bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the claims API and store the session",
	Long: `Sign in to the claims API. The password is taken from --password, the
CLAIMS_PASSWORD environment variable or the first line of stdin.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := resolvePassword(cmd)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			session, user, err := a.auth.Login(ctx, models.Credentials{
				Username: loginUsername,
				Password: password,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"session_id": session.ID,
					"user":       user,
				})
			}
			name := user.Username
			if full := strings.TrimSpace(user.FirstName + " " + user.LastName); full != "" {
				name = full
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (session %s)\n", name, session.ID)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if logoutAll {
				n, err := a.sessions.DeleteAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d sessions\n", n)
				return nil
			}

			_, session, err := a.auth.Current(ctx)
			if err != nil {
				return err
			}
			if err := a.auth.Logout(ctx, session.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed out %s\n", session.Username)
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed in operator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			ts, err := a.current(ctx)
			if err != nil {
				return err
			}
			user, err := a.client.Me(ctx, ts)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), user)
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "USERNAME", "NAME", "CENTER"}, [][]string{{
				fmt.Sprint(user.ID),
				user.Username,
				strings.TrimSpace(user.FirstName + " " + user.LastName),
				user.DistributorCenter,
			}})
		})
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password")
	if err := loginCmd.MarkFlagRequired("username"); err != nil {
		panic(err)
	}
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored session")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func resolvePassword(cmd *cobra.Command) (string, error) {
	if loginPassword != "" {
		return loginPassword, nil
	}
	if env := os.Getenv(passwordEnv); env != "" {
		return env, nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrap(err, "read password")
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}
