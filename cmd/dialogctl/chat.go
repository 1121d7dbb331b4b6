package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/dialogd/internal/app"
	"github.com/fyrsmithlabs/dialogd/internal/config"
	"github.com/fyrsmithlabs/dialogd/internal/events"
	"github.com/fyrsmithlabs/dialogd/internal/logging"
	"github.com/fyrsmithlabs/dialogd/internal/orchestrator"
)

var chatRegion string

// chatCmd runs the pipeline in-process against in-memory stores.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Plan turns for lines read from stdin",
	Long: `Run the turn pipeline in-process. Each line of stdin is one user turn;
the resulting turn plan is printed as one JSON object per line.

Memory backends and the event publisher are replaced with in-memory
versions, so no external services are needed.

Examples:
  # Interactive
  dialogctl chat

  # Replay a transcript
  dialogctl chat --region US < transcript.txt`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runChat(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), chatRegion)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatRegion, "region", "", "crisis resource region")
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, region string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.Memory.SQLitePath = ""
	cfg.Memory.ChromemPath = ""
	cfg.Responder.Enabled = false

	a, err := app.Build(ctx, cfg, logging.Nop(), app.Options{
		Registerer: prometheus.NewRegistry(),
		Reporter:   events.Nop{},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	id := a.Orchestrator.CreateSession()
	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		plan, err := a.Orchestrator.ProcessTurn(ctx, id, line, nil, orchestrator.TurnOptions{Region: region})
		if err != nil {
			return fmt.Errorf("turn failed: %w", err)
		}
		if err := enc.Encode(plan); err != nil {
			return err
		}
	}
	return scanner.Err()
}
