package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// VenueConfig describes one venue integration in the venues YAML file.
type VenueConfig struct {
	ID        string `yaml:"id"`
	Driver    string `yaml:"driver"` // "binance" or "mock"
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
	Enabled   bool   `yaml:"enabled"`
}

// VenueSet is the parsed venue list.
type VenueSet struct {
	Venues []VenueConfig `yaml:"venues"`
}

// Enabled returns only the venues marked enabled.
func (vs *VenueSet) Enabled() []VenueConfig {
	out := make([]VenueConfig, 0, len(vs.Venues))
	for _, v := range vs.Venues {
		if v.Enabled {
			out = append(out, v)
		}
	}
	return out
}

// LoadVenues reads and validates the venue set from a YAML file.
func LoadVenues(path string) (*VenueSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read venues file %q: %w", path, err)
	}
	var vs VenueSet
	if err := yaml.Unmarshal(data, &vs); err != nil {
		return nil, fmt.Errorf("failed to parse venues file %q: %w", path, err)
	}

	var errs []string
	seen := make(map[string]bool)
	for i, v := range vs.Venues {
		if v.ID == "" {
			errs = append(errs, fmt.Sprintf("venue %d: id is required", i))
			continue
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Sprintf("venue %q: duplicate id", v.ID))
		}
		seen[v.ID] = true
		switch v.Driver {
		case "binance", "mock":
		default:
			errs = append(errs, fmt.Sprintf("venue %q: unknown driver %q", v.ID, v.Driver))
		}
		if v.Driver == "binance" && v.Enabled && (v.APIKey == "" || v.APISecret == "") {
			errs = append(errs, fmt.Sprintf("venue %q: api_key and api_secret are required", v.ID))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("venues validation failed: %s", strings.Join(errs, "; "))
	}
	return &vs, nil
}
