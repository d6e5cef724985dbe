package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"dario.cat/mergo"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mudler/xlog"
	"gopkg.in/yaml.v3"
)

// StyleRegistry maps style ids to their configuration, one table per tier.
// Lookups never fail: unknown styles resolve to DefaultStyle.
type StyleRegistry struct {
	styles map[string]map[string]StyleConfig
	sync.RWMutex
}

func NewStyleRegistry() *StyleRegistry {
	return &StyleRegistry{styles: builtinStyles()}
}

// LoadStylesFromFile merges a YAML document of the form
//
//	base:
//	  anime:
//	    strength: 0.4
//	  watercolor:
//	    model: my/watercolor-diffusion
//	    prompt_prefix: watercolor painting
//
// over the registry. Fields left out keep the built-in value.
func (r *StyleRegistry) LoadStylesFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read styles file: %w", err)
	}
	return r.LoadStyles(data)
}

func (r *StyleRegistry) LoadStyles(data []byte) error {
	overrides := map[string]map[string]StyleConfig{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("cannot parse styles: %w", err)
	}

	r.Lock()
	defer r.Unlock()

	for tier, styles := range overrides {
		tier = normalize(tier)
		if _, ok := r.styles[tier]; !ok {
			return fmt.Errorf("unknown tier %q, expected %s or %s", tier, TierBase, TierHires)
		}
		for id, override := range styles {
			id = normalize(id)
			if err := mergo.Merge(&override, r.styles[tier][id]); err != nil {
				return fmt.Errorf("cannot merge style %s/%s: %w", tier, id, err)
			}
			if override.Model == "" {
				return fmt.Errorf("style %s/%s has no model", tier, id)
			}
			xlog.Debug("Style configured from file", "tier", tier, "style", id, "model", override.Model)
			r.styles[tier][id] = override
		}
	}
	return nil
}

// Resolve returns the configuration for id in tier. Ids are matched case
// insensitively, unknown tiers use TierBase.
func (r *StyleRegistry) Resolve(tier, id string) StyleConfig {
	r.RLock()
	defer r.RUnlock()

	table, ok := r.styles[normalize(tier)]
	if !ok {
		table = r.styles[TierBase]
	}

	name := normalize(id)
	style, ok := table[name]
	if !ok {
		xlog.Debug("Unknown style, using default", "style", id, "default", DefaultStyle)
		name = DefaultStyle
		style = table[DefaultStyle]
	}
	style.Name = name
	return style
}

func (r *StyleRegistry) Has(tier, id string) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.styles[normalize(tier)][normalize(id)]
	return ok
}

// Names lists the style ids of tier, sorted.
func (r *StyleRegistry) Names(tier string) []string {
	r.RLock()
	defer r.RUnlock()

	names := []string{}
	for name := range r.styles[normalize(tier)] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Suggest returns the style of tier closest to an unknown id, or "" when
// nothing is close enough to be a likely typo.
func (r *StyleRegistry) Suggest(tier, id string) string {
	id = normalize(id)
	if id == "" {
		return ""
	}
	names := r.Names(tier)

	ranks := fuzzy.RankFindFold(id, names)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDistance := "", maxSuggestDistance+1
	for _, name := range names {
		if d := fuzzy.LevenshteinDistance(id, name); d < bestDistance {
			best, bestDistance = name, d
		}
	}
	return best
}

const maxSuggestDistance = 2

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
