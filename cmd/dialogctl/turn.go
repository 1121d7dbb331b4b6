package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	turnSession string
	turnRegion  string
)

// turnCmd sends one turn to a running server.
var turnCmd = &cobra.Command{
	Use:   "turn <input>",
	Short: "Send one turn to a dialogd server",
	Long: `Send one user turn to a dialogd server and print the turn plan.
A new session is created unless --session is given; its id is printed
to stderr so later turns can reuse it.

Examples:
  dialogctl turn "I keep going back to that job"
  dialogctl turn --session 3f0c... "yes, that's it"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTurn,
}

func init() {
	turnCmd.Flags().StringVar(&turnSession, "session", "", "existing session id")
	turnCmd.Flags().StringVar(&turnRegion, "region", "", "crisis resource region")
}

func runTurn(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 30 * time.Second}

	id := turnSession
	if id == "" {
		resp, err := client.Post(serverURL+"/api/v1/sessions", "application/json", nil)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		defer resp.Body.Close()
		if err := checkStatus(resp, http.StatusCreated); err != nil {
			return err
		}
		var created struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		id = created.SessionID
		fmt.Fprintf(os.Stderr, "[dialogctl] session %s\n", id)
	}

	reqJSON, err := json.Marshal(map[string]string{
		"input":  strings.Join(args, " "),
		"region": turnRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(serverURL+"/api/v1/sessions/"+id+"/turns", "application/json", bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to send turn: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var plan json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, plan, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}
