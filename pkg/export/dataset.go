package export

// Dataset is the tabular form every register renderer consumes: ordered
// headers plus rows keyed by header name. Missing keys render empty.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// values flattens a row into header order.
func (d Dataset) values(row map[string]string) []string {
	out := make([]string, len(d.Headers))
	for i, h := range d.Headers {
		out[i] = row[h]
	}
	return out
}
