package tabular

// Table is a dataset read into memory as strings, in file column order.
// Every row has exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// ColumnIndex returns the position of a header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// pandas-style dtype tags
const (
	DTypeInt64    = "int64"
	DTypeFloat64  = "float64"
	DTypeBool     = "bool"
	DTypeObject   = "object"
	DTypeDatetime = "datetime64[ns]"
)
