package localexec

import (
	"fmt"
	"sort"
	"strconv"

	"goprep/adapters/tabular"
	"goprep/domain/preprocess"
	"goprep/internal/schema"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// pipeline applies the transformations to one table in place.
type pipeline struct {
	table  *tabular.Table
	dtypes map[string]string
	target string
}

func newPipeline(t *tabular.Table, infer tabular.InferenceConfig, target string) *pipeline {
	return &pipeline{table: t, dtypes: infer.InferDTypes(t), target: target}
}

func (p *pipeline) isNumeric(col string) bool {
	return schema.IsNumericTag(p.dtypes[col])
}

func (p *pipeline) isCategorical(col string) bool {
	return schema.IsCategoricalTag(p.dtypes[col])
}

// impute fills or drops missing cells. mean and median apply to numeric
// columns; every other column is filled with its most frequent value.
func (p *pipeline) impute(strategy preprocess.MissingStrategy) error {
	if strategy == preprocess.MissingDrop {
		p.dropMissingRows()
		return nil
	}

	for j, col := range p.table.Headers {
		var fill string
		var err error
		switch {
		case p.isNumeric(col) && strategy != preprocess.MissingMode:
			fill, err = p.numericFill(j, strategy)
		case p.isNumeric(col):
			fill, err = p.numericMode(j)
		default:
			fill = p.frequentValue(j)
		}
		if err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
		if fill == "" {
			continue
		}
		for _, row := range p.table.Rows {
			if tabular.IsMissing(row[j]) {
				row[j] = fill
			}
		}
	}
	return nil
}

func (p *pipeline) dropMissingRows() {
	kept := p.table.Rows[:0]
	for _, row := range p.table.Rows {
		complete := true
		for _, cell := range row {
			if tabular.IsMissing(cell) {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, row)
		}
	}
	p.table.Rows = kept
}

func (p *pipeline) numbers(j int) []float64 {
	var out []float64
	for _, row := range p.table.Rows {
		if v, ok := tabular.ParseNumber(row[j]); ok {
			out = append(out, v)
		}
	}
	return out
}

func (p *pipeline) numericFill(j int, strategy preprocess.MissingStrategy) (string, error) {
	data := p.numbers(j)
	if len(data) == 0 {
		return "", nil
	}
	var (
		v   float64
		err error
	)
	if strategy == preprocess.MissingMedian {
		v, err = stats.Median(data)
	} else {
		v, err = stats.Mean(data)
	}
	if err != nil {
		return "", err
	}
	return formatFloat(v), nil
}

func (p *pipeline) numericMode(j int) (string, error) {
	data := p.numbers(j)
	if len(data) == 0 {
		return "", nil
	}
	modes, err := stats.Mode(data)
	if err != nil {
		return "", err
	}
	// stats.Mode returns nothing when every value is unique
	if len(modes) == 0 {
		modes = data
	}
	smallest, err := stats.Min(modes)
	if err != nil {
		return "", err
	}
	return formatFloat(smallest), nil
}

// frequentValue returns the most common non-missing cell, ties broken by
// lexical order.
func (p *pipeline) frequentValue(j int) string {
	counts := make(map[string]int)
	for _, row := range p.table.Rows {
		if !tabular.IsMissing(row[j]) {
			counts[row[j]]++
		}
	}
	best, bestCount := "", 0
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}

// scale standardizes numeric columns to zero mean and unit variance. An
// empty subset means every numeric column except the target.
func (p *pipeline) scale(subset []string) {
	for _, col := range p.selectColumns(subset, p.isNumeric) {
		j := p.table.ColumnIndex(col)
		values := make([]float64, len(p.table.Rows))
		ok := make([]bool, len(p.table.Rows))
		var present []float64
		for i, row := range p.table.Rows {
			values[i], ok[i] = tabular.ParseNumber(row[j])
			if ok[i] {
				present = append(present, values[i])
			}
		}
		if len(present) == 0 {
			continue
		}
		mean, std := stat.PopMeanStdDev(present, nil)
		for i, row := range p.table.Rows {
			if !ok[i] {
				continue
			}
			if std == 0 {
				row[j] = "0"
			} else {
				row[j] = formatFloat((values[i] - mean) / std)
			}
		}
	}
}

// encode replaces categorical columns with numeric encodings.
func (p *pipeline) encode(method preprocess.EncodingMethod, subset []string, folds int) error {
	cols := p.selectColumns(subset, p.isCategorical)
	if len(cols) == 0 {
		return nil
	}

	var targets []float64
	if method.RequiresTarget() {
		var err error
		if targets, err = p.targetValues(); err != nil {
			return err
		}
	}

	for _, col := range cols {
		switch method {
		case preprocess.EncodingOneHot:
			p.oneHot(col)
		case preprocess.EncodingLabel:
			p.label(col)
		case preprocess.EncodingTarget:
			p.targetMean(col, targets)
		case preprocess.EncodingKFold:
			p.kfoldTargetMean(col, targets, folds)
		default:
			return fmt.Errorf("unknown encoding method %q", method)
		}
	}
	return nil
}

// selectColumns returns subset filtered to eligible columns, or every
// eligible column when subset is empty. The target is never transformed.
func (p *pipeline) selectColumns(subset []string, eligible func(string) bool) []string {
	candidates := subset
	if len(candidates) == 0 {
		candidates = p.table.Headers
	}
	var out []string
	for _, col := range candidates {
		if col == p.target || p.table.ColumnIndex(col) < 0 || !eligible(col) {
			continue
		}
		out = append(out, col)
	}
	return out
}

func (p *pipeline) categories(j int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range p.table.Rows {
		if !seen[row[j]] {
			seen[row[j]] = true
			out = append(out, row[j])
		}
	}
	sort.Strings(out)
	return out
}

func (p *pipeline) label(col string) {
	j := p.table.ColumnIndex(col)
	index := make(map[string]int)
	for i, c := range p.categories(j) {
		index[c] = i
	}
	for _, row := range p.table.Rows {
		row[j] = strconv.Itoa(index[row[j]])
	}
}

// oneHot replaces col with one 0/1 column per category, named col_category,
// at the same position.
func (p *pipeline) oneHot(col string) {
	j := p.table.ColumnIndex(col)
	cats := p.categories(j)

	headers := make([]string, 0, len(p.table.Headers)+len(cats)-1)
	headers = append(headers, p.table.Headers[:j]...)
	for _, c := range cats {
		headers = append(headers, col+"_"+c)
	}
	headers = append(headers, p.table.Headers[j+1:]...)

	for i, row := range p.table.Rows {
		out := make([]string, 0, len(headers))
		out = append(out, row[:j]...)
		for _, c := range cats {
			if row[j] == c {
				out = append(out, "1")
			} else {
				out = append(out, "0")
			}
		}
		out = append(out, row[j+1:]...)
		p.table.Rows[i] = out
	}
	p.table.Headers = headers
}

// targetValues reads the target column as numbers; a non-numeric target is
// label-encoded first.
func (p *pipeline) targetValues() ([]float64, error) {
	j := p.table.ColumnIndex(p.target)
	if j < 0 {
		return nil, fmt.Errorf("target column %q not found", p.target)
	}
	out := make([]float64, len(p.table.Rows))
	numeric := true
	for i, row := range p.table.Rows {
		v, ok := tabular.ParseNumber(row[j])
		if !ok {
			numeric = false
			break
		}
		out[i] = v
	}
	if numeric {
		return out, nil
	}

	index := make(map[string]int)
	for i, c := range p.categories(j) {
		index[c] = i
	}
	for i, row := range p.table.Rows {
		out[i] = float64(index[row[j]])
	}
	return out, nil
}

func (p *pipeline) targetMean(col string, targets []float64) {
	j := p.table.ColumnIndex(col)
	all := make([]int, len(p.table.Rows))
	for i := range all {
		all[i] = i
	}
	means, global := p.categoryMeans(j, targets, all)
	for _, row := range p.table.Rows {
		if m, ok := means[row[j]]; ok {
			row[j] = formatFloat(m)
		} else {
			row[j] = formatFloat(global)
		}
	}
}

// kfoldTargetMean encodes each row with category means computed on the other
// folds only, so no row sees its own target.
func (p *pipeline) kfoldTargetMean(col string, targets []float64, folds int) {
	j := p.table.ColumnIndex(col)
	n := len(p.table.Rows)
	if folds > n {
		folds = n
	}
	if folds < 2 {
		p.targetMean(col, targets)
		return
	}

	encoded := make([]string, n)
	for f := 0; f < folds; f++ {
		var train []int
		for i := 0; i < n; i++ {
			if i%folds != f {
				train = append(train, i)
			}
		}
		means, global := p.categoryMeans(j, targets, train)
		for i := f; i < n; i += folds {
			if m, ok := means[p.table.Rows[i][j]]; ok {
				encoded[i] = formatFloat(m)
			} else {
				encoded[i] = formatFloat(global)
			}
		}
	}
	for i, row := range p.table.Rows {
		row[j] = encoded[i]
	}
}

func (p *pipeline) categoryMeans(j int, targets []float64, rows []int) (map[string]float64, float64) {
	groups := make(map[string][]float64)
	all := make([]float64, 0, len(rows))
	for _, i := range rows {
		c := p.table.Rows[i][j]
		groups[c] = append(groups[c], targets[i])
		all = append(all, targets[i])
	}
	means := make(map[string]float64, len(groups))
	for c, vals := range groups {
		means[c], _ = stats.Mean(vals)
	}
	global, _ := stats.Mean(all)
	return means, global
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
