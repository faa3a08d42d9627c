package analysis

// CategoryRegistry assigns dense column indexes to category keys in the
// order they are first seen. It only grows.
type CategoryRegistry struct {
	index map[string]int
	keys  []string
}

// NewCategoryRegistry creates an empty registry
func NewCategoryRegistry() *CategoryRegistry {
	return &CategoryRegistry{index: make(map[string]int)}
}

// Add registers key and returns its column
func (r *CategoryRegistry) Add(key string) int {
	if i, ok := r.index[key]; ok {
		return i
	}
	i := len(r.keys)
	r.index[key] = i
	r.keys = append(r.keys, key)
	return i
}

// AddAll registers every key of counts
func (r *CategoryRegistry) AddAll(counts map[string]float64) {
	for _, k := range sortedKeys(counts) {
		r.Add(k)
	}
}

// Index returns the column of key
func (r *CategoryRegistry) Index(key string) (int, bool) {
	i, ok := r.index[key]
	return i, ok
}

// Keys returns the registered keys in column order
func (r *CategoryRegistry) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of columns
func (r *CategoryRegistry) Len() int { return len(r.keys) }

// Row lays counts out as a dense row in column order
func (r *CategoryRegistry) Row(counts map[string]float64) []float64 {
	row := make([]float64, len(r.keys))
	for k, v := range counts {
		if i, ok := r.index[k]; ok {
			row[i] = v
		}
	}
	return row
}
