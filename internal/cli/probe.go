package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"streamnorm/internal/logger"
	"streamnorm/internal/manifest"
	"streamnorm/internal/probe"
)

var (
	probeLive  bool
	probeSplit bool
	probeID    string
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Download one manifest and print its normalized formats as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger(logLevel)
		fetcher, stop := newFetcher(log, userAgent)
		defer stop()

		opts := manifest.Options{
			IDPrefix:           probeID,
			Fatal:              fatal,
			Live:               probeLive,
			SplitDiscontinuity: probeSplit,
			Fetcher:            fetcher,
			Logger:             log,
		}
		result, err := probe.FromURL(args[0], opts)
		if err != nil {
			return fmt.Errorf("failed to probe %s: %w", args[0], err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeLive, "live", false, "treat the manifest as a live snapshot")
	probeCmd.Flags().BoolVar(&probeSplit, "split-discontinuity", false, "split HLS playlists at discontinuities")
	probeCmd.Flags().StringVar(&probeID, "id-prefix", "", "prefix joined into every format id")
}
