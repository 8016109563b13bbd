package cfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed describes users and feeds registered at startup. Registration goes
// through the same idempotent path as the feeds API, so re-applying the same
// file is safe.
type Seed struct {
	Users []SeedUser `yaml:"users"`
}

type SeedUser struct {
	AccessToken string     `yaml:"access_token"`
	Feeds       []SeedFeed `yaml:"feeds"`
}

type SeedFeed struct {
	URL            string `yaml:"url"`
	Type           string `yaml:"type"` // "rss" (default) or "instagram"
	InstagramID    int64  `yaml:"instagram_id"`
	IncludeSummary bool   `yaml:"include_summary"`
	IncludeThumb   bool   `yaml:"include_thumb"`
	ExtractContent bool   `yaml:"extract_content"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	for i, user := range seed.Users {
		if user.AccessToken == "" {
			return nil, fmt.Errorf("seed user at index %d has no access token", i)
		}
		for j, f := range user.Feeds {
			if f.URL == "" {
				return nil, fmt.Errorf("seed feed at index %d for user %d has no URL", j, i)
			}
			if f.Type != "" && f.Type != "rss" && f.Type != "instagram" {
				return nil, fmt.Errorf("seed feed %s has invalid type %q", f.URL, f.Type)
			}
		}
	}

	return &seed, nil
}
