package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seqguard/seqguard/internal/logger"
	"github.com/seqguard/seqguard/internal/sink"
)

var (
	detRuleID    string
	detSessionID string
	detSeverity  string
	detSince     string
	detLimit     int
)

var detectionsCmd = &cobra.Command{
	Use:   "detections",
	Short: "Query the persisted detection log",
	Long: `Query detections persisted by a seqguard daemon with storage
enabled.

Example:
  seqguard detections --severity critical --since 2026-08-01T00:00:00Z`,
	RunE: runDetections,
}

func init() {
	detectionsCmd.Flags().StringVar(&detRuleID, "rule", "", "Filter by rule id")
	detectionsCmd.Flags().StringVar(&detSessionID, "session", "", "Filter by session id")
	detectionsCmd.Flags().StringVar(&detSeverity, "severity", "", "Filter by severity")
	detectionsCmd.Flags().StringVar(&detSince, "since", "", "Only detections at or after this RFC3339 time")
	detectionsCmd.Flags().IntVar(&detLimit, "limit", 50, "Maximum rows returned")
	rootCmd.AddCommand(detectionsCmd)
}

func runDetections(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.InitQuiet()

	if cfg.Storage.Path == "" {
		return fmt.Errorf("no detection store configured (set storage.path)")
	}

	store, err := sink.OpenStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening detection store: %w", err)
	}
	defer store.Close()

	opts := sink.QueryOpts{
		RuleID:    detRuleID,
		SessionID: detSessionID,
		Severity:  detSeverity,
		Limit:     detLimit,
	}
	if detSince != "" {
		t, err := time.Parse(time.RFC3339, detSince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		opts.Since = t
	}

	dets, err := store.Query(opts)
	if err != nil {
		return err
	}
	if len(dets) == 0 {
		fmt.Println("No detections found.")
		return nil
	}

	for _, d := range dets {
		fmt.Printf("%s  [%s] %s session=%s\n",
			d.DetectedAt.Format(time.RFC3339), d.Severity, d.RuleID, d.SessionID)
		fmt.Printf("  %s\n", d.Explanation)
	}
	fmt.Printf("%d detection(s)\n", len(dets))
	return nil
}
