package preprocess

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"goprep/domain/core"
)

// MissingStrategy selects how the execution service fills missing values
type MissingStrategy string

const (
	MissingMean   MissingStrategy = "mean"
	MissingMedian MissingStrategy = "median"
	MissingMode   MissingStrategy = "mode"
	MissingDrop   MissingStrategy = "drop"
)

// MissingStrategies lists the recognized strategies in display order.
var MissingStrategies = []MissingStrategy{MissingMean, MissingMedian, MissingMode, MissingDrop}

// Valid reports whether s is a recognized strategy.
func (s MissingStrategy) Valid() bool {
	switch s {
	case MissingMean, MissingMedian, MissingMode, MissingDrop:
		return true
	}
	return false
}

// ParseMissingStrategy parses a strategy name
func ParseMissingStrategy(s string) (MissingStrategy, error) {
	ms := MissingStrategy(strings.TrimSpace(s))
	if !ms.Valid() {
		return "", fmt.Errorf("unknown missing-value strategy %q", s)
	}
	return ms, nil
}

// EncodingMethod selects how categorical columns are encoded
type EncodingMethod string

const (
	EncodingOneHot EncodingMethod = "onehot"
	EncodingLabel  EncodingMethod = "label"
	EncodingTarget EncodingMethod = "target"
	EncodingKFold  EncodingMethod = "kfold"
)

// EncodingMethods lists the recognized methods in display order.
var EncodingMethods = []EncodingMethod{EncodingOneHot, EncodingLabel, EncodingTarget, EncodingKFold}

// Valid reports whether m is a recognized method.
func (m EncodingMethod) Valid() bool {
	switch m {
	case EncodingOneHot, EncodingLabel, EncodingTarget, EncodingKFold:
		return true
	}
	return false
}

// RequiresTarget reports whether the encoding uses target information and
// therefore needs a target column to avoid leakage.
func (m EncodingMethod) RequiresTarget() bool {
	return m == EncodingTarget || m == EncodingKFold
}

// ParseEncodingMethod parses an encoding method name
func ParseEncodingMethod(s string) (EncodingMethod, error) {
	em := EncodingMethod(strings.TrimSpace(s))
	if !em.Valid() {
		return "", fmt.Errorf("unknown encoding method %q", s)
	}
	return em, nil
}

// Config is the operator's preprocessing selection.
type Config struct {
	MissingStrategy MissingStrategy `json:"missing_strategy"`
	ScalingEnabled  bool            `json:"scaling_enabled"`
	ScalingColumns  []string        `json:"scaling_columns"`
	EncodingMethod  EncodingMethod  `json:"encoding_method"`
	EncodingColumns []string        `json:"encoding_columns"`
	TargetColumn    string          `json:"target_column"`
}

// DefaultConfig returns the configuration a fresh session starts with.
func DefaultConfig() Config {
	return Config{
		MissingStrategy: MissingMean,
		ScalingEnabled:  true,
		EncodingMethod:  EncodingOneHot,
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.ScalingColumns = append([]string(nil), c.ScalingColumns...)
	out.EncodingColumns = append([]string(nil), c.EncodingColumns...)
	return out
}

// SubsetModes records which operations are restricted to an explicit
// column subset instead of every eligible column.
type SubsetModes struct {
	Scaling  bool `json:"scaling"`
	Encoding bool `json:"encoding"`
}

// Snapshot is an immutable view of the configuration taken at submit time.
type Snapshot struct {
	Config Config      `json:"config"`
	Modes  SubsetModes `json:"subset_modes"`
}

// WireRequest is the parameter set sent to the execution service.
// Column lists are comma-joined; an empty string means "all eligible".
type WireRequest struct {
	MissingStrategy MissingStrategy `json:"missing_strategy"`
	Scaling         bool            `json:"scaling"`
	ScalingColumns  string          `json:"scaling_columns"`
	Encoding        EncodingMethod  `json:"encoding"`
	EncodingColumns string          `json:"encoding_columns"`
	TargetColumn    string          `json:"target_column"`
}

// ColumnListSeparator joins subset column lists on the wire.
const ColumnListSeparator = ","

// SplitColumnList is the inverse of the wire column-list encoding.
func SplitColumnList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ColumnListSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Result maps each submitted dataset to its output artifact.
type Result map[core.DatasetID]core.ArtifactRef

// KeysMatch reports whether the result has exactly one entry per id.
func (r Result) KeysMatch(ids []core.DatasetID) bool {
	seen := make(map[core.DatasetID]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	if len(seen) != len(r) {
		return false
	}
	for id := range r {
		if !seen[id] {
			return false
		}
	}
	return true
}

// SortedIDs returns the result keys in lexical order.
func (r Result) SortedIDs() []core.DatasetID {
	ids := make([]core.DatasetID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SubmissionStatus is the lifecycle state of a recorded submission
type SubmissionStatus string

const (
	StatusRunning   SubmissionStatus = "running"
	StatusSucceeded SubmissionStatus = "succeeded"
	StatusFailed    SubmissionStatus = "failed"
)

// Submission is the ledger record of one batch submission.
type Submission struct {
	ID          core.SubmissionID `json:"id" db:"id"`
	Snapshot    Snapshot          `json:"snapshot" db:"-"`
	DatasetIDs  []core.DatasetID  `json:"dataset_ids" db:"-"`
	Status      SubmissionStatus  `json:"status" db:"status"`
	Result      Result            `json:"result,omitempty" db:"-"`
	Error       string            `json:"error,omitempty" db:"error_message"`
	StartedAt   time.Time         `json:"started_at" db:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// Duration returns how long the submission ran, or zero while running.
func (s *Submission) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}
