package preprocessing

import (
	"log"
	"sync"

	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/schema"
)

// DefaultingPolicy decides when suggested defaults overwrite the configuration
type DefaultingPolicy string

const (
	// ApplyOnce adopts each suggestion on its first non-empty arrival only.
	ApplyOnce DefaultingPolicy = "once"
	// ApplyOnChange re-adopts suggestions whenever their content changes,
	// which may overwrite manual edits.
	ApplyOnChange DefaultingPolicy = "on_change"
)

// ParseDefaultingPolicy maps a config value to a policy, defaulting to ApplyOnce.
func ParseDefaultingPolicy(s string) DefaultingPolicy {
	if DefaultingPolicy(s) == ApplyOnChange {
		return ApplyOnChange
	}
	return ApplyOnce
}

// State holds the operator's current preprocessing configuration. It has a
// single logical writer; the mutex only serializes HTTP handler goroutines.
// Mutators do not validate.
type State struct {
	mu     sync.RWMutex
	cfg    preprocess.Config
	modes  preprocess.SubsetModes
	policy DefaultingPolicy

	// watched-value bookkeeping for suggestion defaulting
	strategyApplied bool
	targetApplied   bool
	lastSuggestions core.Hash

	// subsets the operator has touched are no longer seeded from summaries
	scalingEdited  bool
	encodingEdited bool
}

// NewState returns a state holding the default configuration.
func NewState(policy DefaultingPolicy) *State {
	return &State{
		cfg:    preprocess.DefaultConfig(),
		policy: policy,
	}
}

// Snapshot returns an immutable copy of the configuration and subset modes.
func (s *State) Snapshot() preprocess.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return preprocess.Snapshot{Config: s.cfg.Clone(), Modes: s.modes}
}

func (s *State) SetMissingStrategy(ms preprocess.MissingStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.MissingStrategy = ms
}

func (s *State) SetScaling(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ScalingEnabled = enabled
}

// SetScalingSubsetMode toggles subset selection for scaling. Turning it off
// keeps the selected subset for when it is turned back on.
func (s *State) SetScalingSubsetMode(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes.Scaling = active
}

func (s *State) SetScalingColumns(cols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ScalingColumns = uniqueColumns(cols)
	s.scalingEdited = true
}

// ToggleScalingColumn adds col to the scaling subset, or removes it if present.
func (s *State) ToggleScalingColumn(col string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ScalingColumns = toggle(s.cfg.ScalingColumns, col)
	s.scalingEdited = true
}

func (s *State) SetEncodingMethod(m preprocess.EncodingMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.EncodingMethod = m
}

// SetEncodingSubsetMode toggles subset selection for encoding, keeping the subset.
func (s *State) SetEncodingSubsetMode(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes.Encoding = active
}

func (s *State) SetEncodingColumns(cols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.EncodingColumns = uniqueColumns(cols)
	s.encodingEdited = true
}

// ToggleEncodingColumn adds col to the encoding subset, or removes it if present.
func (s *State) ToggleEncodingColumn(col string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.EncodingColumns = toggle(s.cfg.EncodingColumns, col)
	s.encodingEdited = true
}

func (s *State) SetTargetColumn(col string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.TargetColumn = col
}

// SeedColumns pre-selects the numeric columns for scaling and the
// categorical columns for encoding, for each subset the operator has not
// edited yet.
func (s *State) SeedColumns(c schema.Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scalingEdited {
		s.cfg.ScalingColumns = append([]string(nil), c.Numeric...)
	}
	if !s.encodingEdited {
		s.cfg.EncodingColumns = append([]string(nil), c.Categorical...)
	}
}

// ApplySuggestions seeds the missing-value strategy and target column from
// upstream suggestions according to the defaulting policy. It reports
// whether anything was adopted. Applying the same suggestions twice has the
// same effect as applying them once.
func (s *State) ApplySuggestions(sg dataset.Suggestions) bool {
	if sg.IsEmpty() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.policy {
	case ApplyOnChange:
		fp := suggestionFingerprint(sg)
		if fp == s.lastSuggestions {
			return false
		}
		s.lastSuggestions = fp
		strategy := s.adoptStrategy(sg)
		target := s.adoptTarget(sg)
		return strategy || target
	default:
		applied := false
		if !s.strategyApplied && s.adoptStrategy(sg) {
			s.strategyApplied = true
			applied = true
		}
		if !s.targetApplied && s.adoptTarget(sg) {
			s.targetApplied = true
			applied = true
		}
		return applied
	}
}

func (s *State) adoptStrategy(sg dataset.Suggestions) bool {
	raw, ok := sg.FirstMissingStrategy()
	if !ok {
		return false
	}
	ms, err := preprocess.ParseMissingStrategy(raw)
	if err != nil {
		log.Printf("[State] Ignoring suggested missing strategy: %v", err)
		return false
	}
	s.cfg.MissingStrategy = ms
	return true
}

func (s *State) adoptTarget(sg dataset.Suggestions) bool {
	target, ok := sg.FirstTargetColumn()
	if !ok {
		return false
	}
	s.cfg.TargetColumn = target
	return true
}

// Reset restores the default configuration and re-arms suggestion defaulting.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = preprocess.DefaultConfig()
	s.modes = preprocess.SubsetModes{}
	s.strategyApplied, s.targetApplied = false, false
	s.lastSuggestions = ""
	s.scalingEdited, s.encodingEdited = false, false
}

func suggestionFingerprint(sg dataset.Suggestions) core.Hash {
	parts := make([]string, 0, 2*(len(sg.MissingStrategies)+len(sg.TargetColumns))+1)
	for _, m := range sg.MissingStrategies {
		parts = append(parts, m.DatasetID.String(), m.Value)
	}
	parts = append(parts, "|")
	for _, t := range sg.TargetColumns {
		parts = append(parts, t.DatasetID.String(), t.Value)
	}
	return core.NewHashOfParts(parts...)
}

func toggle(cols []string, col string) []string {
	out := make([]string, 0, len(cols)+1)
	found := false
	for _, c := range cols {
		if c == col {
			found = true
			continue
		}
		out = append(out, c)
	}
	if !found {
		out = append(out, col)
	}
	return out
}

func uniqueColumns(cols []string) []string {
	seen := make(map[string]bool, len(cols))
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
