// Package guidance serves phase tips from an embedded catalog.
package guidance

import (
	_ "embed"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"duet/internal/core/model"
)

//go:embed tips.yaml
var builtinTips []byte

type document struct {
	Tips   map[string]string              `yaml:"tips"`
	Phases map[string]map[string][]string `yaml:"phases"`
}

// Catalog maps phase types and guidance levels to tips. It is safe for
// concurrent use.
type Catalog struct {
	mu     sync.Mutex
	random *rand.Rand
	// levels holds the tips introduced at each exact level.
	levels map[model.PhaseType]map[model.GuidanceLevel][]string
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRand sets the source used by RandomTip.
func WithRand(random *rand.Rand) Option {
	return func(catalog *Catalog) {
		if random != nil {
			catalog.random = random
		}
	}
}

// Builtin returns the catalog shipped with the binary.
func Builtin(opts ...Option) (*Catalog, error) {
	return Parse(builtinTips, opts...)
}

// Parse builds a catalog from a YAML document.
func Parse(data []byte, opts ...Option) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse guidance: %w", err)
	}

	catalog := &Catalog{
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
		levels: make(map[model.PhaseType]map[model.GuidanceLevel][]string),
	}
	for _, opt := range opts {
		opt(catalog)
	}

	for phaseName, byLevel := range doc.Phases {
		phaseType, err := model.ParsePhaseType(phaseName)
		if err != nil {
			return nil, fmt.Errorf("parse guidance: %w", err)
		}
		if phaseType.IsSpeaking() {
			return nil, fmt.Errorf("parse guidance: %s is a speaking phase and takes no tips", phaseName)
		}

		levels := make(map[model.GuidanceLevel][]string, len(byLevel))
		for levelName, ids := range byLevel {
			level, err := model.ParseGuidanceLevel(levelName)
			if err != nil {
				return nil, fmt.Errorf("parse guidance: %s: %w", phaseName, err)
			}
			if level == model.GuidanceNone {
				return nil, fmt.Errorf("parse guidance: %s: level none takes no tips", phaseName)
			}
			for _, id := range ids {
				text, ok := doc.Tips[id]
				if !ok {
					return nil, fmt.Errorf("parse guidance: %s/%s: unknown tip %q", phaseName, levelName, id)
				}
				levels[level] = append(levels[level], text)
			}
		}
		catalog.levels[phaseType] = levels
	}
	return catalog, nil
}

// TipsForPhase returns every tip up to and including level for the phase
// type. Speaking phases and GuidanceNone get nothing.
func (catalog *Catalog) TipsForPhase(phaseType model.PhaseType, level model.GuidanceLevel) []string {
	if level == model.GuidanceNone || phaseType.IsSpeaking() {
		return nil
	}
	byLevel, ok := catalog.levels[phaseType]
	if !ok {
		return nil
	}

	var tips []string
	for _, candidate := range model.AllGuidanceLevels() {
		if candidate == model.GuidanceNone || candidate > level {
			continue
		}
		tips = append(tips, byLevel[candidate]...)
	}
	return tips
}

// RandomTip returns one of the tips TipsForPhase would return.
func (catalog *Catalog) RandomTip(phaseType model.PhaseType, level model.GuidanceLevel) (string, bool) {
	tips := catalog.TipsForPhase(phaseType, level)
	if len(tips) == 0 {
		return "", false
	}

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	return tips[catalog.random.Intn(len(tips))], true
}
