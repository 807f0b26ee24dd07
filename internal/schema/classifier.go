// Package schema derives the column universe and the numeric/categorical
// role partition from per-dataset summaries.
//
// Classification is fail-soft: summaries lacking a column list or dtype
// mapping are skipped, and any unexpected structural failure degrades to an
// empty classification that is logged rather than returned.
package schema

import (
	"log"
	"strings"

	"goprep/domain/dataset"
)

// Role is the display label of a column's derived role
type Role string

const (
	RoleNumeric     Role = "numeric"
	RoleCategorical Role = "categorical"
	RoleMixed       Role = "mixed" // flagged both ways by disagreeing datasets
	RoleUnknown     Role = "unknown"
)

var (
	numericTags     = map[string]bool{"int64": true, "float64": true, "int": true, "float": true}
	numericMarkers  = []string{"int", "float"}
	categoricalTags = map[string]bool{"object": true, "category": true}
	categoricalMark = []string{"str", "O"}
)

// IsNumericTag reports whether a dtype tag marks a numeric column.
// Matching is case-sensitive.
func IsNumericTag(tag string) bool {
	if numericTags[tag] {
		return true
	}
	for _, m := range numericMarkers {
		if strings.Contains(tag, m) {
			return true
		}
	}
	return false
}

// IsCategoricalTag reports whether a dtype tag marks a categorical column.
func IsCategoricalTag(tag string) bool {
	if categoricalTags[tag] {
		return true
	}
	for _, m := range categoricalMark {
		if strings.Contains(tag, m) {
			return true
		}
	}
	return false
}

// Classification is the derived column universe and role partition.
// Numeric and Categorical follow Universe order.
type Classification struct {
	Universe    []string `json:"columns"`
	Numeric     []string `json:"numeric_columns"`
	Categorical []string `json:"categorical_columns"`

	numeric     map[string]bool
	categorical map[string]bool
}

// Empty returns the classification used when summaries are unusable.
func Empty() Classification {
	return Classification{
		Universe:    []string{},
		Numeric:     []string{},
		Categorical: []string{},
		numeric:     map[string]bool{},
		categorical: map[string]bool{},
	}
}

// IsNumeric reports whether col was flagged numeric by any dataset.
func (c Classification) IsNumeric(col string) bool { return c.numeric[col] }

// IsCategorical reports whether col was flagged categorical by any dataset.
func (c Classification) IsCategorical(col string) bool { return c.categorical[col] }

// Roles returns the display role of every column in the universe.
func (c Classification) Roles() map[string]Role {
	roles := make(map[string]Role, len(c.Universe))
	for _, col := range c.Universe {
		switch {
		case c.numeric[col] && c.categorical[col]:
			roles[col] = RoleMixed
		case c.numeric[col]:
			roles[col] = RoleNumeric
		case c.categorical[col]:
			roles[col] = RoleCategorical
		default:
			roles[col] = RoleUnknown
		}
	}
	return roles
}

// Classify derives the classification from the current summaries. It is a
// pure function of its input.
func Classify(summaries dataset.Summaries) (result Classification) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Classifier] Malformed dataset summaries, using empty classification: %v", r)
			result = Empty()
		}
	}()

	result = Empty()
	seen := make(map[string]bool)

	for _, entry := range summaries {
		s := entry.Summary
		if !s.HasColumns() {
			continue
		}
		for _, col := range s.Columns {
			if !seen[col] {
				seen[col] = true
				result.Universe = append(result.Universe, col)
			}
		}
		if !s.HasDTypes() {
			continue
		}
		for _, col := range s.Columns {
			tag := s.DTypes[col]
			if IsNumericTag(tag) {
				result.numeric[col] = true
			}
			if IsCategoricalTag(tag) {
				result.categorical[col] = true
			}
		}
	}

	for _, col := range result.Universe {
		if result.numeric[col] {
			result.Numeric = append(result.Numeric, col)
		}
		if result.categorical[col] {
			result.Categorical = append(result.Categorical, col)
		}
	}
	return result
}
