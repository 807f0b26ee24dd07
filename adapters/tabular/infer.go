package tabular

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// InferenceConfig holds the share of non-missing values that must parse as a
// type for the column to get that type's tag.
type InferenceConfig struct {
	NumericThreshold   float64 `json:"numeric_threshold"`
	BooleanThreshold   float64 `json:"boolean_threshold"`
	TimestampThreshold float64 `json:"timestamp_threshold"`
	SampleSize         int     `json:"sample_size"`
}

// DefaultInferenceConfig mirrors how pandas types a freshly read CSV: a column
// is numeric or boolean only if every value parses.
func DefaultInferenceConfig() InferenceConfig {
	return InferenceConfig{
		NumericThreshold:   1.0,
		BooleanThreshold:   1.0,
		TimestampThreshold: 0.8,
		SampleSize:         5000,
	}
}

// missingTokens are the cell values read as missing.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// IsMissing reports whether a cell counts as a missing value.
func IsMissing(cell string) bool {
	return missingTokens[strings.TrimSpace(cell)]
}

// ParseNumber parses a numeric cell. Thousands separators are accepted;
// infinities and NaN are not.
func ParseNumber(cell string) (float64, bool) {
	clean := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if clean == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func isInteger(cell string) bool {
	clean := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	_, err := strconv.ParseInt(clean, 10, 64)
	return err == nil
}

func isBoolean(cell string) bool {
	switch strings.TrimSpace(cell) {
	case "True", "False", "true", "false", "TRUE", "FALSE":
		return true
	}
	return false
}

var timestampFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"02-Jan-2006",
}

func isTimestamp(cell string) bool {
	cell = strings.TrimSpace(cell)
	for _, format := range timestampFormats {
		if _, err := time.Parse(format, cell); err == nil {
			return true
		}
	}
	return false
}

// TypeAnalysis counts how the non-missing values of a column parse
type TypeAnalysis struct {
	TotalCount     int     `json:"total_count"`
	ValidCount     int     `json:"valid_count"`
	NumericCount   int     `json:"numeric_count"`
	IntegerCount   int     `json:"integer_count"`
	BooleanCount   int     `json:"boolean_count"`
	TimestampCount int     `json:"timestamp_count"`
	NumericRatio   float64 `json:"numeric_ratio"`
	BooleanRatio   float64 `json:"boolean_ratio"`
	TimestampRatio float64 `json:"timestamp_ratio"`
	DType          string  `json:"dtype"`
}

// AnalyzeColumn inspects a column's cells and picks its dtype tag
func (c InferenceConfig) AnalyzeColumn(cells []string) TypeAnalysis {
	analysis := TypeAnalysis{TotalCount: len(cells)}
	for _, cell := range cells {
		if IsMissing(cell) {
			continue
		}
		analysis.ValidCount++
		if _, ok := ParseNumber(cell); ok {
			analysis.NumericCount++
			if isInteger(cell) {
				analysis.IntegerCount++
			}
		}
		if isBoolean(cell) {
			analysis.BooleanCount++
		}
		if isTimestamp(cell) {
			analysis.TimestampCount++
		}
	}

	// an all-missing column reads as float64 NaNs
	if analysis.ValidCount == 0 {
		analysis.DType = DTypeFloat64
		return analysis
	}

	valid := float64(analysis.ValidCount)
	analysis.NumericRatio = float64(analysis.NumericCount) / valid
	analysis.BooleanRatio = float64(analysis.BooleanCount) / valid
	analysis.TimestampRatio = float64(analysis.TimestampCount) / valid
	analysis.DType = c.dtype(analysis)
	return analysis
}

func (c InferenceConfig) dtype(a TypeAnalysis) string {
	if a.NumericRatio >= c.NumericThreshold {
		// integers with gaps become floats
		if a.IntegerCount == a.ValidCount && a.ValidCount == a.TotalCount {
			return DTypeInt64
		}
		return DTypeFloat64
	}
	if a.BooleanRatio >= c.BooleanThreshold {
		if a.ValidCount == a.TotalCount {
			return DTypeBool
		}
		return DTypeObject
	}
	if a.TimestampRatio >= c.TimestampThreshold {
		return DTypeDatetime
	}
	return DTypeObject
}

// InferDTypes returns the dtype tag of every column, sampling evenly across
// large tables.
func (c InferenceConfig) InferDTypes(t *Table) map[string]string {
	sample := sampleRows(len(t.Rows), c.SampleSize)
	dtypes := make(map[string]string, len(t.Headers))
	for j, h := range t.Headers {
		cells := make([]string, len(sample))
		for i, idx := range sample {
			cells[i] = t.Rows[idx][j]
		}
		dtypes[h] = c.AnalyzeColumn(cells).DType
	}
	return dtypes
}

// sampleRows returns evenly spaced row indices.
func sampleRows(totalRows, sampleSize int) []int {
	if sampleSize <= 0 || sampleSize >= totalRows {
		indices := make([]int, totalRows)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	indices := make([]int, 0, sampleSize)
	step := float64(totalRows) / float64(sampleSize)
	for i := 0; i < sampleSize; i++ {
		idx := int(math.Floor(float64(i) * step))
		if idx < totalRows {
			indices = append(indices, idx)
		}
	}
	return indices
}
