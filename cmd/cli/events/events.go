package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Guardefi/landing1.2-sub002/cmd/cli/config"
)

// InitEvents registers event submission commands on the root command.
func InitEvents(rootCmd *cobra.Command) {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Submit audit events",
	}
	eventsCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(eventsCmd)
}

func submitCmd() *cobra.Command {
	var eventType, action, resourceType, resourceID string
	var detailsJSON string
	var failed bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one audit event",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"event_type":    eventType,
				"action":        action,
				"resource_type": resourceType,
				"resource_id":   resourceID,
				"success":       !failed,
			}
			if detailsJSON != "" {
				var details map[string]interface{}
				if err := json.Unmarshal([]byte(detailsJSON), &details); err != nil {
					return fmt.Errorf("invalid --details JSON: %w", err)
				}
				payload["details"] = details
			}

			token, err := config.ReadToken()
			if err != nil {
				return err
			}
			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			req, err := http.NewRequest("POST", config.APIURL()+"/v1/events", bytes.NewBuffer(data))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
			}

			var ack struct {
				EventID     string `json:"event_id"`
				BlockNumber int64  `json:"block_number"`
				BlockHash   string `json:"block_hash"`
			}
			if err := json.Unmarshal(body, &ack); err != nil {
				return err
			}
			fmt.Printf("Committed block %d (event %s)\nblock hash: %s\n", ack.BlockNumber, ack.EventID, ack.BlockHash)
			return nil
		},
	}

	cmd.Flags().StringVar(&eventType, "type", "", "Event type (required)")
	cmd.Flags().StringVar(&action, "action", "", "Action name (required)")
	cmd.Flags().StringVar(&resourceType, "resource-type", "", "Resource type")
	cmd.Flags().StringVar(&resourceID, "resource-id", "", "Resource identifier")
	cmd.Flags().StringVar(&detailsJSON, "details", "", "Structured details as a JSON object")
	cmd.Flags().BoolVar(&failed, "failed", false, "Mark the action as failed")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("action")

	return cmd
}
