package features

// Vector holds the features extracted for one record, keyed by name.
type Vector map[string]float64

// Align lays the vector out in the given column order. Columns the vector
// lacks become 0.
func (v Vector) Align(columns []string) []float64 {
	out := make([]float64, len(columns))
	for i, c := range columns {
		out[i] = v[c]
	}
	return out
}

// Columns returns the canonical-order names of every feature present in at
// least one vector.
func Columns(vectors []Vector) []string {
	present := make(map[string]bool)
	for _, v := range vectors {
		for k := range v {
			present[k] = true
		}
	}
	cols := make([]string, 0, len(present))
	for _, c := range CanonicalOrder {
		if present[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// Matrix aligns every vector into a row-major feature matrix.
func Matrix(vectors []Vector, columns []string) [][]float64 {
	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = v.Align(columns)
	}
	return rows
}
