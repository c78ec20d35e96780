package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Guardefi/landing1.2-sub002/cmd/cli/config"
	"github.com/Guardefi/landing1.2-sub002/cmd/cli/output"
	"github.com/Guardefi/landing1.2-sub002/internal/models"
)

// InitBlocks registers ledger read commands on the root command.
func InitBlocks(rootCmd *cobra.Command) {
	blocksCmd := &cobra.Command{
		Use:   "blocks",
		Short: "Inspect committed ledger blocks",
	}
	blocksCmd.AddCommand(listCmd(), showCmd())

	chainCmd := &cobra.Command{
		Use:   "chain",
		Short: "Show the chain tip and integrity status",
		RunE:  runChain,
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify chain integrity",
		Long:  "Replay a block range (or the full chain), recomputing hashes, signatures and linkage.",
		RunE:  runVerify,
	}
	verifyCmd.Flags().Int64Var(&verifyStart, "start", 0, "First block of the range (0 = full chain)")
	verifyCmd.Flags().Int64Var(&verifyEnd, "end", 0, "Last block of the range (0 = full chain)")

	rootCmd.AddCommand(blocksCmd, chainCmd, verifyCmd)
}

var (
	verifyStart int64
	verifyEnd   int64
)

func listCmd() *cobra.Command {
	var actor, org, eventType string
	var limit, offset int
	var asc bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List committed blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := []string{fmt.Sprintf("limit=%d", limit), fmt.Sprintf("offset=%d", offset)}
			if actor != "" {
				params = append(params, "actor="+actor)
			}
			if org != "" {
				params = append(params, "org="+org)
			}
			if eventType != "" {
				params = append(params, "event_type="+eventType)
			}
			if asc {
				params = append(params, "sort=asc")
			}

			var resp struct {
				Items []models.Block `json:"items"`
				Total int            `json:"total"`
			}
			if err := getJSON("/v1/blocks?"+strings.Join(params, "&"), &resp); err != nil {
				return err
			}

			rows := make([][]interface{}, 0, len(resp.Items))
			for _, b := range resp.Items {
				rows = append(rows, []interface{}{
					b.BlockNumber,
					b.Event.EventID,
					b.Event.EventType,
					b.Event.Actor,
					b.Event.Action,
					b.Event.RiskScore,
					shortHash(b.BlockHash),
					b.CommittedAt.Format("2006-01-02 15:04:05"),
				})
			}
			output.RenderTable(
				[]string{"#", "EVENT ID", "TYPE", "ACTOR", "ACTION", "RISK", "HASH", "COMMITTED"},
				rows,
			)
			fmt.Printf("%d of %d blocks\n", len(resp.Items), resp.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Filter by actor")
	cmd.Flags().StringVar(&org, "org", "", "Filter by organization")
	cmd.Flags().StringVar(&eventType, "event-type", "", "Filter by event type")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	cmd.Flags().BoolVar(&asc, "asc", false, "Ascending block-number order")

	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <block-number>",
		Short: "Show one block in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var block models.Block
			if err := getJSON("/v1/blocks/"+args[0], &block); err != nil {
				return err
			}
			b, err := json.MarshalIndent(block, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}
}

func runChain(cmd *cobra.Command, args []string) error {
	var meta models.ChainMetadata
	if err := getJSON("/v1/chain", &meta); err != nil {
		return err
	}
	lastVerified := "never"
	if meta.LastVerifiedAt != nil {
		lastVerified = meta.LastVerifiedAt.Format("2006-01-02 15:04:05")
	}
	output.RenderTable(
		[]string{"LAST BLOCK", "TIP HASH", "TOTAL EVENTS", "LAST VERIFIED", "INTEGRITY"},
		[][]interface{}{{
			meta.LastBlockNumber,
			shortHash(meta.LastBlockHash),
			meta.TotalEvents,
			lastVerified,
			meta.IntegrityOK,
		}},
	)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	payload := map[string]int64{}
	if verifyStart > 0 {
		payload["start_block"] = verifyStart
		payload["end_block"] = verifyEnd
	}

	var report models.VerificationReport
	if err := postJSON("/v1/verify", payload, &report); err != nil {
		return err
	}

	output.RenderTable(
		[]string{"RANGE", "VERIFIED", "VALID BLOCKS", "MISSING", "BAD SIGNATURES", "BROKEN LINKS", "CONTENT MISMATCHES"},
		[][]interface{}{{
			fmt.Sprintf("%d..%d", report.StartBlock, report.EndBlock),
			report.Verified,
			report.VerifiedBlocks,
			formatNumbers(report.MissingBlocks),
			formatNumbers(report.InvalidSignatures),
			formatNumbers(report.BrokenLinks),
			formatNumbers(report.ContentMismatches),
		}},
	)
	if !report.Verified {
		return fmt.Errorf("chain verification failed")
	}
	return nil
}

func formatNumbers(nums []int64) string {
	if len(nums) == 0 {
		return "-"
	}
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ",")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12] + "…"
	}
	return h
}

func getJSON(path string, out interface{}) error {
	req, err := authedRequest("GET", path, nil)
	if err != nil {
		return err
	}
	return doJSON(req, out)
}

func postJSON(path string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := authedRequest("POST", path, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

func authedRequest(method, path string, body io.Reader) (*http.Request, error) {
	token, err := config.ReadToken()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, config.APIURL()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func doJSON(req *http.Request, out interface{}) error {
	resp, err := http.DefaultClient.Do(req)
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
