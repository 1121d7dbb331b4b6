package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/dialogd/internal/monitor"
)

var topInterval time.Duration

// topCmd shows a live dashboard of a running server.
var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live dashboard of a dialogd server",
	Long: `Poll the server's stats endpoint and show turn rates, latency,
safety bypasses and active sessions.

Examples:
  dialogctl top
  dialogctl top --interval 5s --server http://localhost:9000`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if topInterval < 100*time.Millisecond {
			return fmt.Errorf("interval must be at least 100ms")
		}
		p := tea.NewProgram(monitor.NewModel(serverURL, topInterval), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	},
}

func init() {
	topCmd.Flags().DurationVar(&topInterval, "interval", 2*time.Second, "refresh interval")
}
