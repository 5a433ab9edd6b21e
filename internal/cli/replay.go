package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flood-alerts/internal/app"
)

var (
	replayFrom string
	replayTo   string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run stored readings through the alert policy without sending anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayFrom == "" {
			return fmt.Errorf("--from must be provided")
		}

		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to := time.Now().UTC()
		if replayTo != "" {
			to, err = time.Parse(time.RFC3339, replayTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
		}

		return getApp().Replay(cmd.Context(), app.ReplayOptions{From: from, To: to})
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End timestamp (RFC3339, exclusive; defaults to now)")
}
