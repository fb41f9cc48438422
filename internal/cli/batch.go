package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"streamnorm/internal/config"
	"streamnorm/internal/logger"
	"streamnorm/internal/manifest"
	"streamnorm/internal/probe"
)

var batchConfigFile string

// batchResult pairs a configured source with its probe outcome. Failures
// are reported inline so one dead source does not sink the batch.
type batchResult struct {
	Id     string        `json:"id"`
	Name   string        `json:"name"`
	Error  string        `json:"error,omitempty"`
	Result *probe.Result `json:"result,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Probe every source in a config file and print the combined results as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger(logLevel)

		cfg, err := config.LoadConfig(batchConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		log.Infof("Configuration loaded successfully for: %s", cfg.Name)

		ua := userAgent
		if ua == "" {
			ua = cfg.UserAgent
		}
		fetcher, stop := newFetcher(log, ua)
		defer stop()

		results := make([]batchResult, 0, len(cfg.Sources))
		for _, src := range cfg.Sources {
			opts := manifest.Options{
				IDPrefix:           src.Id,
				Fatal:              fatal,
				Live:               src.Live,
				SplitDiscontinuity: src.SplitDiscontinuity,
				Fetcher:            fetcher,
				Logger:             log,
			}
			res := batchResult{Id: src.Id, Name: src.Name}
			probed, err := probe.FromURL(src.ManifestURL, opts)
			if err != nil {
				log.Errorf("Failed to probe source %s: %v", src.Id, err)
				res.Error = err.Error()
			} else {
				res.Result = probed
			}
			results = append(results, res)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchConfigFile, "config", "c", "sources.json", "path to the source config file")
}
