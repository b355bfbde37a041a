package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/adapter"
	"github.com/seqguard/seqguard/internal/logger"
	"github.com/seqguard/seqguard/internal/sink"
	"github.com/seqguard/seqguard/internal/tracker"
)

var replayFile string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded action stream",
	Long: `Replay a JSONL action stream through a fresh tracker and print
every detection. Replaying the same file against the same rules always
produces the same detections.

Example:
  seqguard replay --file actions.jsonl`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "JSONL action stream ('-' for stdin)")
	_ = replayCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.InitQuiet()

	loader, err := loadRules(cfg)
	if err != nil {
		return err
	}
	snap := loader.Snapshot()

	var in io.Reader
	if replayFile == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(replayFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	// Detections are printed from Ingest's return value so output
	// order follows the input stream exactly.
	noop := sink.Func(func(det *action.Detection) {})
	trk := tracker.New(snap, tracker.Config{MinHistory: snap.MaxWindowActions()}, noop)

	reader := adapter.NewJSONLReader(in)
	total := 0
	detected := 0
	for {
		a, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		total++

		dets, err := trk.Ingest(a)
		if err != nil {
			if errors.Is(err, tracker.ErrSessionClosed) {
				continue
			}
			return err
		}
		for _, det := range dets {
			detected++
			fmt.Printf("[%s] %s session=%s seq=%d\n", det.Severity, det.RuleID, det.SessionID, det.TriggeredBy())
			fmt.Printf("  %s\n", det.Explanation)
		}
	}

	fmt.Printf("Replayed %d action(s), %d detection(s), %d rule(s)\n", total, detected, snap.Len())
	return nil
}
