// Package cli wires the command-line surface: probe a single manifest URL
// or batch-process a configured source list.
package cli

import (
	"time"

	"github.com/spf13/cobra"

	"streamnorm/internal/fetch"
	"streamnorm/internal/logger"
	"streamnorm/internal/manifest"
)

var (
	logLevel  string
	userAgent string
	fatal     bool
)

var rootCmd = &cobra.Command{
	Use:   "streamnorm",
	Short: "Normalize adaptive streaming manifests (HLS, DASH, Smooth Streaming, HDS, SMIL) into a unified format list",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "info", "log level (error, warn, info, debug)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "User-Agent header for manifest requests")
	rootCmd.PersistentFlags().BoolVar(&fatal, "fatal", false, "abort on nested fetch failures instead of skipping")
	rootCmd.AddCommand(probeCmd, batchCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

// newFetcher builds the shared HTTP stack: retrying client behind a
// manifest body cache.
func newFetcher(log logger.Logger, ua string) (manifest.Fetcher, func()) {
	client := fetch.NewClient(log, ua)
	caching := fetch.NewCachingFetcher(client, log, time.Minute)
	caching.Start()
	return caching, caching.Stop
}
