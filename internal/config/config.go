package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Source defines the final, processed structure for a single manifest
// source.
type Source struct {
	Name        string
	Id          string
	ManifestURL string
	// Live marks the source as a live stream snapshot.
	Live bool
	// SplitDiscontinuity splits HLS sources at discontinuities.
	SplitDiscontinuity bool
}

// SourceConfig holds the fully processed application configuration.
type SourceConfig struct {
	Name      string
	UserAgent string
	Sources   []Source
}

// rawSource is used for intermediate unmarshaling from the JSON file.
type rawSource struct {
	Name               string `json:"Name"`
	Id                 string `json:"Id"`
	ManifestURL        string `json:"Manifest"`
	Live               bool   `json:"Live"`
	SplitDiscontinuity bool   `json:"SplitDiscontinuity"`
}

// rawConfig is the intermediate structure that maps directly to the JSON file.
type rawConfig struct {
	Name      string      `json:"Name"`
	UserAgent string      `json:"UserAgent"`
	Sources   []rawSource `json:"Sources"`
}

// LoadConfig reads and parses the configuration file from the given path,
// validating every source's manifest URL.
func LoadConfig(path string) (*SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var rawCfg rawConfig
	if err := json.Unmarshal(data, &rawCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config JSON: %w", err)
	}

	processed := make([]Source, 0, len(rawCfg.Sources))
	for _, rs := range rawCfg.Sources {
		if rs.ManifestURL == "" {
			return nil, fmt.Errorf("source '%s' has no manifest URL", rs.Name)
		}
		u, err := url.Parse(rs.ManifestURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("source '%s' has an invalid manifest URL '%s'", rs.Name, rs.ManifestURL)
		}

		id := rs.Id
		if id == "" {
			id = strings.ToLower(strings.ReplaceAll(rs.Name, " ", "-"))
		}

		processed = append(processed, Source{
			Name:               rs.Name,
			Id:                 id,
			ManifestURL:        rs.ManifestURL,
			Live:               rs.Live,
			SplitDiscontinuity: rs.SplitDiscontinuity,
		})
	}

	return &SourceConfig{
		Name:      rawCfg.Name,
		UserAgent: rawCfg.UserAgent,
		Sources:   processed,
	}, nil
}
