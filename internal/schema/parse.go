package schema

import (
	"fmt"
	"log"

	"goprep/domain/core"
	"goprep/domain/dataset"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

// ParseSummaries decodes the summary provider's JSON document:
//
//	{"<dataset id>": {"summary": {"columns": [...], "dtypes": {...}}}, ...}
//
// The "summary" wrapper is optional and "data_types" is accepted in place of
// "dtypes". Dataset order follows the document. Entries that are not objects,
// or whose fields have the wrong shape, come back with those fields missing
// instead of failing the whole document.
func ParseSummaries(raw []byte) (dataset.Summaries, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("summaries: invalid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("summaries: expected a JSON object keyed by dataset id")
	}

	var out dataset.Summaries
	doc.ForEach(func(key, value gjson.Result) bool {
		out = append(out, dataset.SummaryEntry{
			ID:      core.DatasetID(key.String()),
			Summary: parseSummary(key.String(), value),
		})
		return true
	})
	return out, nil
}

func parseSummary(id string, value gjson.Result) *dataset.Summary {
	if !value.IsObject() {
		log.Printf("[Classifier] Summary for %q is not an object, skipping", id)
		return nil
	}
	node := value
	if inner := value.Get("summary"); inner.Exists() {
		if !inner.IsObject() {
			log.Printf("[Classifier] Summary wrapper for %q is not an object, skipping", id)
			return nil
		}
		node = inner
	}

	s := &dataset.Summary{}

	if cols := node.Get("columns"); cols.IsArray() {
		names, err := cast.ToStringSliceE(cols.Value())
		if err != nil {
			log.Printf("[Classifier] Columns for %q are malformed: %v", id, err)
		} else {
			s.Columns = dedupe(names)
		}
	}

	dtypes := node.Get("dtypes")
	if !dtypes.Exists() {
		dtypes = node.Get("data_types")
	}
	if dtypes.IsObject() {
		tags, err := cast.ToStringMapStringE(dtypes.Value())
		if err != nil {
			log.Printf("[Classifier] Dtypes for %q are malformed: %v", id, err)
		} else {
			s.DTypes = tags
		}
	}

	if rows := node.Get("rows"); rows.Exists() {
		s.Rows = cast.ToInt(rows.Value())
	}
	if missing := node.Get("missing_values"); missing.IsObject() {
		if counts, err := cast.ToStringMapIntE(missing.Value()); err == nil {
			s.Missing = counts
		}
	}
	return s
}

// ParseSuggestions decodes
//
//	{"missing_strategies": {"<id>": "mean"}, "target_columns": {"<id>": "y"}}
//
// keeping the document order of each mapping. Non-string values are coerced.
func ParseSuggestions(raw []byte) (dataset.Suggestions, error) {
	var out dataset.Suggestions
	if !gjson.ValidBytes(raw) {
		return out, fmt.Errorf("suggestions: invalid JSON")
	}
	doc := gjson.ParseBytes(raw)
	out.MissingStrategies = orderedStrings(doc.Get("missing_strategies"))
	out.TargetColumns = orderedStrings(doc.Get("target_columns"))
	return out, nil
}

func orderedStrings(node gjson.Result) []dataset.Suggestion {
	if !node.IsObject() {
		return nil
	}
	var out []dataset.Suggestion
	node.ForEach(func(key, value gjson.Result) bool {
		out = append(out, dataset.Suggestion{
			DatasetID: core.DatasetID(key.String()),
			Value:     cast.ToString(value.Value()),
		})
		return true
	})
	return out
}

// Column lists never repeat a name within one dataset.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
