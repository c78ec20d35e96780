package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Guardefi/landing1.2-sub002/cmd/cli/config"
)

// InitAuth registers auth-related CLI commands (login, logout) on the root command.
func InitAuth(rootCmd *cobra.Command) {
	rootCmd.AddCommand(loginCmd(), logoutCmd())
}

// loginCmd exchanges the API token for a JWT and stores it locally.
func loginCmd() *cobra.Command {
	var actor string
	var org string
	var apiToken string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the audit ledger API",
		Long:  "Exchange the provisioned API token for a JWT and store it for subsequent CLI commands.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("actor is required")
			}
			if apiToken == "" {
				return fmt.Errorf("api-token is required")
			}

			payload := map[string]string{
				"api_token": apiToken,
				"actor":     actor,
				"org_id":    org,
			}
			var tokenResp struct {
				Token string `json:"token"`
			}
			if err := callJSONEndpoint(http.DefaultClient, "/auth/token", payload, &tokenResp); err != nil {
				return fmt.Errorf("failed to login: %w", err)
			}
			if tokenResp.Token == "" {
				return fmt.Errorf("login succeeded but no token returned")
			}

			if err := config.SaveToken(tokenResp.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			fmt.Println("Login successful. Token stored locally.")
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Actor identity to authenticate as")
	cmd.Flags().StringVar(&org, "org", "", "Organization identity")
	cmd.Flags().StringVar(&apiToken, "api-token", "", "Provisioned API token")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the locally stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DeleteToken(); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func callJSONEndpoint(client *http.Client, path string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", config.APIURL()+path, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
