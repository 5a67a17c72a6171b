package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds understood by the list scrapers.
const (
	KindRank   = "rank"
	KindMode   = "mode"
	KindWeapon = "weapon"
)

// SourceProfile describes one game-data listing page: where it lives and the
// selector cascades used to find its items and their fields.
type SourceProfile struct {
	Kind                 string        `yaml:"kind"`
	URL                  string        `yaml:"url"`
	BaseURL              string        `yaml:"base_url"`
	Cascade              []string      `yaml:"cascade"`
	NameSelectors        []string      `yaml:"name_selectors"`
	DescriptionSelectors []string      `yaml:"description_selectors"`
	StatRowSelectors     []string      `yaml:"stat_row_selectors"`
	MaxResults           int           `yaml:"max_results"`
	Timeout              time.Duration `yaml:"timeout"`
}

// RankEntry is the static metadata known for a named rank.
type RankEntry struct {
	ExpRequired int64  `yaml:"exp_required"`
	Bonus       string `yaml:"bonus"`
}

// Profiles bundles every source profile plus the rank metadata table.
type Profiles struct {
	Sources map[string]SourceProfile `yaml:"sources"`
	Ranks   map[string]RankEntry     `yaml:"ranks"`
}

var defaultNameSelectors = []string{
	"h1, h2, h3, h4, h5, h6",
	".name",
	".title",
	"[class*='name']",
	"[class*='title']",
}

var defaultDescriptionSelectors = []string{
	".description",
	".desc",
	"[class*='desc']",
	"p",
}

// DefaultProfiles returns the built-in profiles for ranks, modes and weapons.
func DefaultProfiles(cfg *Config) Profiles {
	return Profiles{
		Sources: map[string]SourceProfile{
			KindRank: {
				Kind:    KindRank,
				URL:     cfg.RanksURL,
				BaseURL: cfg.SiteBaseURL,
				Cascade: []string{
					".rank-item",
					".rank-card",
					".ranks-list li",
					"table.ranks tbody tr",
					"[class*='rank'] li",
					".rank",
				},
				NameSelectors:        defaultNameSelectors,
				DescriptionSelectors: defaultDescriptionSelectors,
				MaxResults:           50,
				Timeout:              cfg.ListingTimeout,
			},
			KindMode: {
				Kind:    KindMode,
				URL:     cfg.ModesURL,
				BaseURL: cfg.SiteBaseURL,
				Cascade: []string{
					".mode-item",
					".game-mode",
					".modes-list li",
					"[class*='mode'] .card",
					".mode",
				},
				NameSelectors:        defaultNameSelectors,
				DescriptionSelectors: defaultDescriptionSelectors,
				MaxResults:           50,
				Timeout:              cfg.ListingTimeout,
			},
			KindWeapon: {
				Kind:    KindWeapon,
				URL:     cfg.WeaponsURL,
				BaseURL: cfg.SiteBaseURL,
				Cascade: []string{
					".weapon-item",
					".weapon-card",
					".weapons-list li",
					"table.weapons tbody tr",
					"[class*='weapon'] .card",
					".weapon",
				},
				NameSelectors:        defaultNameSelectors,
				DescriptionSelectors: defaultDescriptionSelectors,
				StatRowSelectors: []string{
					".stats tr",
					".stat-row",
					"dl.stats > div",
					".stat",
				},
				MaxResults: 100,
				Timeout:    cfg.ListingTimeout,
			},
		},
		Ranks: DefaultRankTable(),
	}
}

// DefaultRankTable is the bonus metadata published for the well-known ranks.
// Upstream changes these independently of the page markup, so the table is data.
func DefaultRankTable() map[string]RankEntry {
	return map[string]RankEntry{
		"Trainee":           {ExpRequired: 0, Bonus: "Starter loadout"},
		"Private":           {ExpRequired: 100000, Bonus: "+5% EXP"},
		"Corporal":          {ExpRequired: 250000, Bonus: "+5% GP"},
		"Sergeant":          {ExpRequired: 500000, Bonus: "+10% EXP"},
		"Staff Sergeant":    {ExpRequired: 1000000, Bonus: "Extra inventory slot"},
		"Lieutenant":        {ExpRequired: 2000000, Bonus: "+10% GP"},
		"Captain":           {ExpRequired: 4000000, Bonus: "+15% EXP"},
		"Major":             {ExpRequired: 8000000, Bonus: "Exclusive spray"},
		"Colonel":           {ExpRequired: 16000000, Bonus: "+15% GP"},
		"Brigadier General": {ExpRequired: 32000000, Bonus: "+20% EXP"},
		"General":           {ExpRequired: 64000000, Bonus: "Golden nameplate"},
		"Marshal":           {ExpRequired: 128000000, Bonus: "+25% EXP and GP"},
	}
}

// LoadProfiles returns DefaultProfiles overlaid with the YAML file at path.
// An empty path or a missing file yields the defaults.
func LoadProfiles(path string, cfg *Config) (Profiles, error) {
	profiles := DefaultProfiles(cfg)
	if strings.TrimSpace(path) == "" {
		return profiles, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return profiles, nil
		}
		return Profiles{}, fmt.Errorf("read profiles file: %w", err)
	}

	var overlay Profiles
	if err := yaml.Unmarshal(b, &overlay); err != nil {
		return Profiles{}, fmt.Errorf("parse profiles file %s: %w", path, err)
	}

	for kind, src := range overlay.Sources {
		profiles.Sources[kind] = mergeProfile(profiles.Sources[kind], src, kind)
	}
	if len(overlay.Ranks) > 0 {
		profiles.Ranks = overlay.Ranks
	}

	for kind, src := range profiles.Sources {
		if len(src.Cascade) == 0 {
			return Profiles{}, fmt.Errorf("profile %q has an empty cascade", kind)
		}
		if err := validateAbsolute("profile "+kind+" url", src.URL); err != nil {
			return Profiles{}, err
		}
	}

	return profiles, nil
}

func mergeProfile(base, overlay SourceProfile, kind string) SourceProfile {
	out := base
	out.Kind = kind
	if overlay.URL != "" {
		out.URL = overlay.URL
	}
	if overlay.BaseURL != "" {
		out.BaseURL = overlay.BaseURL
	}
	if len(overlay.Cascade) > 0 {
		out.Cascade = overlay.Cascade
	}
	if len(overlay.NameSelectors) > 0 {
		out.NameSelectors = overlay.NameSelectors
	}
	if len(overlay.DescriptionSelectors) > 0 {
		out.DescriptionSelectors = overlay.DescriptionSelectors
	}
	if len(overlay.StatRowSelectors) > 0 {
		out.StatRowSelectors = overlay.StatRowSelectors
	}
	if overlay.MaxResults > 0 {
		out.MaxResults = overlay.MaxResults
	}
	if overlay.Timeout > 0 {
		out.Timeout = overlay.Timeout
	}
	return out
}
