package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amigocloud/amigocloud-go/internal/config"
	"github.com/amigocloud/amigocloud-go/pkg/amigocloud"
)

// newLoginCmd creates and returns a new login command
func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with an AmigoCloud API token",
		Long: `Verify an API token against the server and store it in your configuration file.
Tokens are created at https://www.amigocloud.com/accounts/tokens.

The token can also be given through the AMIGOCLOUD_TOKEN environment variable.

Example:
  amigo login --token=<token>`,
		RunE: runLogin,
	}

	cmd.Flags().String("token", "", "API token")
	return cmd
}

// runLogin handles the login command execution
func runLogin(cmd *cobra.Command, args []string) error {
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv(config.EnvToken)
	}
	if token == "" {
		return fmt.Errorf("no token provided. Use --token flag or set %s", config.EnvToken)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	user, err := client.Authenticate(commandContext(cmd), token)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if _, err := saveConfig(func(c *config.Config) { c.Token = token }); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(cmd.OutOrStdout(), map[string]any{
			"status":  "success",
			"message": "Login successful",
			"user_id": user.ID,
			"email":   user.Email,
		})
	} else {
		okLabel.Fprintln(cmd.OutOrStdout(), "✓ Login successful")
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (id %d)\n", displayName(user), user.ID)
	}
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := saveConfig(func(c *config.Config) { c.Token = "" }); err != nil {
				return err
			}
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]any{"status": "success"})
			} else {
				okLabel.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			}
			return nil
		},
	}
}

func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the user behind the current token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if client.Token() == "" {
				return fmt.Errorf("not logged in. Run \"amigo login --token <token>\" first")
			}
			user, err := client.Me(commandContext(cmd))
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), user)
				return nil
			}
			infoLabel.Fprintf(cmd.OutOrStdout(), "%s\n", displayName(user))
			fmt.Fprintf(cmd.OutOrStdout(), "  id:       %d\n", user.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "  username: %s\n", user.Username)
			fmt.Fprintf(cmd.OutOrStdout(), "  email:    %s\n", user.Email)
			return nil
		},
	}
}

func displayName(u *amigocloud.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = u.Email
	}
	return name
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
